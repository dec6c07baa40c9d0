// Package webfetch retrieves a single web page and reduces it to readable
// text for ingestion. Unlike a crawler it never follows links; one URL in,
// one text document out.
package webfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"document-rag-platform/internal/logger"
	"document-rag-platform/utils"
)

// Transport with compression enabled; gzip is transparent, brotli is
// handled manually in the response hook.
var httpTransport = &http.Transport{
	DisableCompression: false,
}

const defaultMaxBodySize = 10 << 20 // 10MB

// Page is one fetched, decoded, readable-text page.
type Page struct {
	URL       string
	Title     string
	Text      string
	FetchedAt time.Time
}

// Fetcher downloads single pages with browser-like headers so ordinary
// sites serve it the same HTML they serve a browser.
type Fetcher struct {
	timeout     time.Duration
	maxBodySize int
	userAgent   string
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{
		timeout:     timeout,
		maxBodySize: defaultMaxBodySize,
		userAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	}
}

// Fetch downloads pageURL, decodes its body to UTF-8 and extracts the
// readable text. Failures to reach or parse the page are validation
// errors since the URL is caller input.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, utils.NewError(utils.KindValidation,
			fmt.Sprintf("invalid URL: %s", pageURL))
	}
	if err := ctx.Err(); err != nil {
		return nil, utils.WrapError(utils.KindTimeout, "fetch aborted", err)
	}

	c := colly.NewCollector(
		colly.MaxDepth(1),
		colly.MaxBodySize(f.maxBodySize),
	)
	c.WithTransport(httpTransport)
	c.SetRequestTimeout(f.timeout)
	c.UserAgent = f.userAgent

	// Browser-like headers avoid 403 responses from sites that reject
	// obvious bots.
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
		r.Headers.Set("Connection", "keep-alive")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
		r.Headers.Set("Referer", fmt.Sprintf("%s://%s/", parsed.Scheme, parsed.Host))
	})

	var (
		page     *Page
		fetchErr error
	)

	c.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
			fetchErr = utils.NewError(utils.KindValidation,
				fmt.Sprintf("URL did not return an HTML page (content type %s)", contentType))
			return
		}

		body := r.Body

		// Go's transport decompresses gzip transparently but not brotli.
		if strings.Contains(r.Headers.Get("Content-Encoding"), "br") {
			decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
			if err == nil {
				body = decompressed
			}
		}

		// Decode legacy charsets to UTF-8. On detection failure keep the
		// original bytes, which are usually UTF-8 already.
		if len(body) > 0 {
			utf8Reader, err := charset.NewReader(bytes.NewReader(body), contentType)
			if err == nil {
				if decoded, readErr := io.ReadAll(utf8Reader); readErr == nil && len(decoded) > 0 {
					body = decoded
				}
			}
		}

		doc, err := ParseHTML(body)
		if err != nil {
			fetchErr = err
			return
		}

		page = &Page{
			URL:       r.Request.URL.String(),
			Title:     ExtractTitle(doc),
			Text:      ExtractReadableText(doc),
			FetchedAt: time.Now().UTC(),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		logger.Warn("Page fetch failed", "url", pageURL, "status", status, "error", err.Error())
		fetchErr = utils.WrapError(utils.KindValidation,
			fmt.Sprintf("failed to fetch URL (status %d)", status), err)
	})

	if err := c.Visit(parsed.String()); err != nil {
		return nil, utils.WrapError(utils.KindValidation, "failed to fetch URL", err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if page == nil {
		return nil, utils.NewError(utils.KindValidation, "URL returned no usable HTML page")
	}
	return page, nil
}
