package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crawlPage = `<!DOCTYPE html>
<html>
<head><title>Battery Research</title><style>body{color:red}</style></head>
<body>
<script>var tracked = true;</script>
<h1>Energy density</h1>
<p>Sodium-ion cells reached 160 Wh/kg in 2024.</p>
<a href="/details">Details</a>
<a href="https://other.example.com/paper">Paper</a>
</body>
</html>`

func TestCrawlTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(crawlPage))
	}))
	defer srv.Close()

	tool := NewCrawlTool(nil, 0)
	res, err := tool.Invoke(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Contains(t, res.Output, "Battery Research")
	assert.Contains(t, res.Output, "160 Wh/kg")
	assert.NotContains(t, res.Output, "tracked", "script content must be skipped")
	assert.NotContains(t, res.Output, "color:red", "style content must be skipped")

	links, ok := res.Metadata["links"].([]string)
	require.True(t, ok)
	assert.Contains(t, links, srv.URL+"/details", "relative links are absolutized")
	assert.Contains(t, links, "https://other.example.com/paper")
}

func TestCrawlToolRejectsNonHTTP(t *testing.T) {
	tool := NewCrawlTool(nil, 0)
	res, err := tool.Invoke(context.Background(), map[string]any{"url": "ftp://example.com"})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestCrawlToolStatusHandling(t *testing.T) {
	t.Run("5xx is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		_, err := NewCrawlTool(nil, 0).Invoke(context.Background(), map[string]any{"url": srv.URL})
		require.Error(t, err)
		assert.True(t, Transient(err))
	})

	t.Run("404 is a plain failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()
		res, err := NewCrawlTool(nil, 0).Invoke(context.Background(), map[string]any{"url": srv.URL})
		require.NoError(t, err)
		assert.False(t, res.Success)
	})
}

func TestCrawlToolMaxChars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(crawlPage))
	}))
	defer srv.Close()

	res, err := NewCrawlTool(nil, 0).Invoke(context.Background(), map[string]any{"url": srv.URL, "max_chars": float64(10)})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "[truncated]")
}
