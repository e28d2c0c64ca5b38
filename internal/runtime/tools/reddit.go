package tools

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samber/lo"

	"github.com/user/wayfarer/internal/runtime"
	"github.com/user/wayfarer/internal/types"
)

const redditSnippetChars = 400

var subredditName = regexp.MustCompile(`^[A-Za-z0-9_]{2,21}$`)

// Reddit searches Reddit discussions with an app-only OAuth token.
type Reddit struct {
	authURL      string
	apiURL       string
	clientID     string
	clientSecret string
	userAgent    string
	client       *Client
}

// NewReddit creates the search_reddit tool.
func NewReddit(client *Client, clientID, clientSecret, userAgent string) *Reddit {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Reddit{
		authURL:      "https://www.reddit.com/api/v1/access_token",
		apiURL:       "https://oauth.reddit.com",
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    userAgent,
		client:       client,
	}
}

func (r *Reddit) Name() string { return types.ToolSearchReddit }
func (r *Reddit) Description() string {
	return "Search Reddit for first-hand traveller experiences, tips and recommendations."
}
func (r *Reddit) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query"},
			"subreddit": {"type": "string", "description": "Optional subreddit without the r/ prefix, e.g. 'JapanTravel'"},
			"limit": {"type": "integer", "description": "Number of posts (default: 8, max: 25)"}
		},
		"required": ["query"]
	}`)
}

type redditParams struct {
	Query     string `json:"query"`
	Subreddit string `json:"subreddit"`
	Limit     int    `json:"limit"`
}

func (p *redditParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return errors.New("query is required")
	}
	p.Subreddit = strings.TrimPrefix(strings.TrimSpace(p.Subreddit), "r/")
	if p.Subreddit != "" && !subredditName.MatchString(p.Subreddit) {
		return errors.New("invalid subreddit name")
	}
	if p.Limit <= 0 {
		p.Limit = 8
	}
	p.Limit = min(p.Limit, 25)
	return nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string `json:"id"`
				Title       string `json:"title"`
				Subreddit   string `json:"subreddit"`
				Permalink   string `json:"permalink"`
				Score       int    `json:"score"`
				NumComments int    `json:"num_comments"`
				Selftext    string `json:"selftext"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (r *Reddit) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var params redditParams
	if err := runtime.DecodeParams(args, &params); err != nil {
		return nil, err
	}

	token, err := r.token(ctx)
	if err != nil {
		return nil, err
	}

	path := "/search"
	query := map[string]string{
		"q":     params.Query,
		"limit": strconv.Itoa(params.Limit),
		"sort":  "relevance",
		"t":     "year",
		"type":  "link",
	}
	if params.Subreddit != "" {
		path = "/r/" + params.Subreddit + "/search"
		query["restrict_sr"] = "1"
	}

	var listing redditListing
	err = r.client.GetJSON(ctx, "Reddit", r.apiURL+path, query, map[string]string{
		"Authorization": "Bearer " + token,
		"User-Agent":    r.userAgent,
	}, &listing)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := &types.RedditResult{Query: params.Query}
	for _, child := range listing.Data.Children {
		d := child.Data
		result.Posts = append(result.Posts, types.RedditPost{
			ID:          d.ID,
			Title:       d.Title,
			Subreddit:   d.Subreddit,
			URL:         "https://www.reddit.com" + d.Permalink,
			Score:       d.Score,
			NumComments: d.NumComments,
			Snippet:     truncateRunes(strings.TrimSpace(d.Selftext), redditSnippetChars),
		})
	}
	sources := lo.Map(result.Posts, func(p types.RedditPost, _ int) types.Citation {
		return types.Citation{
			URL:        p.URL,
			Title:      p.Title,
			Snippet:    p.Snippet,
			Timestamp:  now,
			Confidence: redditConfidence(p.Score),
		}
	})
	return types.Succeeded(result, sources...), nil
}

func (r *Reddit) token(ctx context.Context) (string, error) {
	key := "reddit:token:" + r.clientID
	if v, ok := r.client.cache.Get(key); ok {
		return v.(string), nil
	}
	var tok oauthToken
	err := r.client.Do(ctx, "Reddit auth", func() (*resty.Response, error) {
		return r.client.R(ctx).
			SetBasicAuth(r.clientID, r.clientSecret).
			SetHeader("User-Agent", r.userAgent).
			SetFormData(map[string]string{"grant_type": "client_credentials"}).
			Post(r.authURL)
	}, &tok)
	if err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errors.New("reddit auth: empty access token")
	}
	r.client.cache.Set(key, tok.AccessToken, time.Duration(max(tok.ExpiresIn-60, 30))*time.Second)
	return tok.AccessToken, nil
}

// redditConfidence grows with post score, between 0.4 and 0.8.
func redditConfidence(score int) float64 {
	switch {
	case score >= 500:
		return 0.8
	case score >= 100:
		return 0.7
	case score >= 20:
		return 0.55
	}
	return 0.4
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
