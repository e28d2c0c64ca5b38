package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/wayfarer/internal/runtime"
	"github.com/user/wayfarer/internal/types"
)

const maxReadURLChars = 50000

// ReadURL fetches a page and converts its HTML content to markdown.
type ReadURL struct {
	client *Client
}

// NewReadURL creates the read_url tool.
func NewReadURL(client *Client) *ReadURL {
	return &ReadURL{client: client}
}

func (r *ReadURL) Name() string { return types.ToolReadURL }
func (r *ReadURL) Description() string {
	return "Fetch a web page (for example a blog post or venue site) and return its content as markdown."
}
func (r *ReadURL) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "The http(s) URL to fetch"}
		},
		"required": ["url"]
	}`)
}

type readURLParams struct {
	URL string `json:"url"`
}

func (p *readURLParams) Validate() error {
	u, err := url.Parse(strings.TrimSpace(p.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("url must be an absolute http(s) URL")
	}
	p.URL = u.String()
	return nil
}

func (r *ReadURL) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var params readURLParams
	if err := runtime.DecodeParams(args, &params); err != nil {
		return nil, err
	}

	resp, err := r.client.R(ctx).SetHeader("Accept", "text/html,*/*").Get(params.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}
	if resp.IsError() {
		return nil, &StatusError{Provider: "page", Code: resp.StatusCode(), Body: resp.Status()}
	}

	md, err := htmltomarkdown.ConvertString(resp.String())
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}

	page := &types.PageResult{URL: params.URL, Markdown: md}
	if len(md) > maxReadURLChars {
		page.Markdown = md[:maxReadURLChars] + "\n\n[Content truncated]"
		page.Truncated = true
	}

	return types.Succeeded(page, types.Citation{
		URL:        params.URL,
		Title:      pageTitle(md, params.URL),
		Timestamp:  time.Now(),
		Confidence: 0.7,
	}), nil
}

// pageTitle returns the first markdown heading, or the URL.
func pageTitle(md, fallback string) string {
	for line := range strings.Lines(md) {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return fallback
}
