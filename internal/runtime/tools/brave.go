package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/user/wayfarer/internal/runtime"
	"github.com/user/wayfarer/internal/types"
)

// WebSearch searches the web via the Brave Search API.
type WebSearch struct {
	apiKey  string
	baseURL string
	client  *Client
}

// NewWebSearch creates the web_search tool.
func NewWebSearch(client *Client, apiKey string) *WebSearch {
	return &WebSearch{
		apiKey:  apiKey,
		baseURL: "https://api.search.brave.com/res/v1/web/search",
		client:  client,
	}
}

func (b *WebSearch) Name() string { return types.ToolWebSearch }
func (b *WebSearch) Description() string {
	return "Search the web for travel articles, guides, opening times and recent news."
}
func (b *WebSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query"},
			"count": {"type": "integer", "description": "Number of results (default: 5, max: 20)"}
		},
		"required": ["query"]
	}`)
}

type webSearchParams struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

func (p *webSearchParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return errors.New("query is required")
	}
	if p.Count <= 0 {
		p.Count = 5
	}
	p.Count = min(p.Count, 20)
	return nil
}

type braveResponse struct {
	Web braveWeb `json:"web"`
}

type braveWeb struct {
	Results []braveResult `json:"results"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

func (b *WebSearch) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var params webSearchParams
	if err := runtime.DecodeParams(args, &params); err != nil {
		return nil, err
	}

	var result braveResponse
	err := b.client.GetJSON(ctx, "Brave", b.baseURL,
		map[string]string{"q": params.Query, "count": strconv.Itoa(params.Count)},
		map[string]string{"X-Subscription-Token": b.apiKey},
		&result)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	results := lo.Map(result.Web.Results, func(r braveResult, _ int) types.WebResult {
		return types.WebResult{Title: r.Title, URL: r.URL, Description: stripTags(r.Description)}
	})
	sources := lo.Map(results, func(r types.WebResult, i int) types.Citation {
		return types.Citation{
			URL:        r.URL,
			Title:      r.Title,
			Snippet:    r.Description,
			Timestamp:  now,
			Confidence: rankConfidence(i, 0.8),
		}
	})
	return types.Succeeded(&types.WebSearchResult{Query: params.Query, Results: results}, sources...), nil
}

// stripTags removes the <strong> highlighting some providers put in snippets.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// rankConfidence decays a top confidence by result position, floored at 0.3.
func rankConfidence(rank int, top float64) float64 {
	return max(top-0.05*float64(rank), 0.3)
}
