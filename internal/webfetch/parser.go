package webfetch

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"document-rag-platform/utils"
)

// Elements that carry no readable prose.
const strippedSelectors = "script, style, noscript, iframe, svg, nav, header, footer, form, button"

// Containers tried in order when locating the main content region.
var mainSelectors = []string{
	"main",
	"article",
	"[role='main']",
	"#content",
	".content",
	"#main",
	"body",
}

// Block-level elements collected as text blocks.
const blockSelectors = "h1, h2, h3, h4, h5, h6, p, li, td, th, blockquote, pre, figcaption"

func ParseHTML(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, utils.WrapError(utils.KindValidation, "failed to parse HTML", err)
	}
	return doc, nil
}

// ExtractTitle returns the page title, trying the title element, the
// OpenGraph title, then the first heading.
func ExtractTitle(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		og, _ := doc.Find("meta[property='og:title']").Attr("content")
		title = strings.TrimSpace(og)
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	return title
}

// ExtractReadableText reduces a parsed page to its readable text. Boilerplate
// elements are removed, the main content container is located, and leaf
// block elements are collected in document order, separated by blank lines.
// Pages without recognizable block structure fall back to whitespace
// collapsed body text.
func ExtractReadableText(doc *goquery.Document) string {
	doc.Find(strippedSelectors).Remove()

	var root *goquery.Selection
	for _, selector := range mainSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() > 0 && strings.TrimSpace(sel.Text()) != "" {
			root = sel
			break
		}
	}
	if root == nil {
		root = doc.Selection
	}

	var blocks []string
	root.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		// Skip containers whose block children will be collected on their
		// own, otherwise nested text is emitted twice.
		if s.Find(blockSelectors).Length() > 0 {
			return
		}
		text := strings.TrimSpace(collapseSpaces(s.Text()))
		if text != "" {
			blocks = append(blocks, text)
		}
	})

	if len(blocks) == 0 {
		return collapseWhitespace(root.Text())
	}
	return strings.Join(blocks, "\n\n")
}

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

func collapseSpaces(s string) string {
	return spaceRun.ReplaceAllString(strings.ReplaceAll(s, "\n", " "), " ")
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceRun.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
