package webfetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"document-rag-platform/utils"
)

func newPageServer(t *testing.T, register func(mux *http.ServeMux)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nAllow: /\n"))
	})
	register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchReadablePage(t *testing.T) {
	srv := newPageServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/doc", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(`<html><head><title>Install Guide</title></head><body><main><h1>Install Guide</h1><p>Step one works.</p></main></body></html>`))
		})
	})

	fetcher := NewFetcher(5 * time.Second)
	page, err := fetcher.Fetch(context.Background(), srv.URL+"/doc")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/doc", page.URL)
	assert.Equal(t, "Install Guide", page.Title)
	assert.Equal(t, "Install Guide\n\nStep one works.", page.Text)
	assert.False(t, page.FetchedAt.IsZero())
}

func TestFetchRejectsInvalidURL(t *testing.T) {
	fetcher := NewFetcher(time.Second)

	for _, bad := range []string{"", "not-a-url", "ftp://example.com/file", "http://"} {
		t.Run(bad, func(t *testing.T) {
			_, err := fetcher.Fetch(context.Background(), bad)
			require.Error(t, err)
			assert.True(t, utils.IsKind(err, utils.KindValidation))
		})
	}
}

func TestFetchRejectsNonHTMLContent(t *testing.T) {
	srv := newPageServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"not": "html"}`))
		})
	})

	fetcher := NewFetcher(time.Second)
	_, err := fetcher.Fetch(context.Background(), srv.URL+"/data")
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindValidation))
	assert.Contains(t, err.Error(), "content type")
}

func TestFetchReportsHTTPErrors(t *testing.T) {
	srv := newPageServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		})
	})

	fetcher := NewFetcher(time.Second)
	_, err := fetcher.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindValidation))
}

func TestFetchDecodesBrotliBody(t *testing.T) {
	var compressed bytes.Buffer
	writer := brotli.NewWriter(&compressed)
	_, err := writer.Write([]byte(`<html><head><title>Compressed</title></head><body><main><p>Dense content.</p></main></body></html>`))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	srv := newPageServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/br", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("Content-Encoding", "br")
			w.Write(compressed.Bytes())
		})
	})

	fetcher := NewFetcher(5 * time.Second)
	page, err := fetcher.Fetch(context.Background(), srv.URL+"/br")
	require.NoError(t, err)
	assert.Equal(t, "Compressed", page.Title)
	assert.Equal(t, "Dense content.", page.Text)
}

func TestFetchDecodesLegacyCharset(t *testing.T) {
	srv := newPageServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/latin", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
			w.Write([]byte("<html><head><title>Caf\xe9</title></head><body><main><p>R\xe9sum\xe9 content.</p></main></body></html>"))
		})
	})

	fetcher := NewFetcher(5 * time.Second)
	page, err := fetcher.Fetch(context.Background(), srv.URL+"/latin")
	require.NoError(t, err)
	assert.Equal(t, "Café", page.Title)
	assert.Equal(t, "Résumé content.", page.Text)
}

func TestFetchHonorsCancelledContext(t *testing.T) {
	srv := newPageServer(t, func(mux *http.ServeMux) {
		mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><body><p>late</p></body></html>"))
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := NewFetcher(time.Second)
	_, err := fetcher.Fetch(ctx, srv.URL+"/slow")
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindTimeout))
}
