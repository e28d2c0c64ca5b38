package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/wayfarer/internal/types"
)

func TestReadURLName(t *testing.T) {
	assert.Equal(t, "read_url", NewReadURL(testClient()).Name())
}

func TestReadURLExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Hidden Bars of Porto</h1><p>This is a test.</p></body></html>`))
	}))
	defer server.Close()

	args, _ := json.Marshal(map[string]string{"url": server.URL})
	res, err := NewReadURL(testClient()).Execute(context.Background(), args)
	require.NoError(t, err)

	page := res.Data.(*types.PageResult)
	assert.Contains(t, page.Markdown, "Hidden Bars of Porto")
	assert.Contains(t, page.Markdown, "This is a test")
	assert.False(t, page.Truncated)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "Hidden Bars of Porto", res.Sources[0].Title)
}

func TestReadURLRejectsBadURL(t *testing.T) {
	r := NewReadURL(testClient())
	for _, raw := range []string{`{}`, `{"url":"file:///etc/passwd"}`, `{"url":"not a url"}`} {
		_, err := r.Execute(context.Background(), json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
}

func TestReadURLTruncation(t *testing.T) {
	long := strings.Repeat("x", 60000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><p>" + long + "</p></body></html>"))
	}))
	defer server.Close()

	args, _ := json.Marshal(map[string]string{"url": server.URL})
	res, err := NewReadURL(testClient()).Execute(context.Background(), args)
	require.NoError(t, err)

	page := res.Data.(*types.PageResult)
	assert.True(t, page.Truncated)
	assert.True(t, strings.HasSuffix(page.Markdown, "[Content truncated]"))
	assert.Equal(t, server.URL, res.Sources[0].Title)
}

func TestReadURLNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	args, _ := json.Marshal(map[string]string{"url": server.URL})
	_, err := NewReadURL(testClient()).Execute(context.Background(), args)
	require.Error(t, err)
}
