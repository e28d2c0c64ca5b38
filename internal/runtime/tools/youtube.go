package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/user/wayfarer/internal/runtime"
	"github.com/user/wayfarer/internal/types"
)

var isoDuration = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// YouTube searches travel videos with the YouTube Data API v3. Besides
// serving the search_videos tool it backs the video enrichment pipeline.
type YouTube struct {
	apiKey  string
	baseURL string
	client  *Client
}

// NewYouTube creates the search_videos tool.
func NewYouTube(client *Client, apiKey string) *YouTube {
	return &YouTube{
		apiKey:  apiKey,
		baseURL: "https://www.googleapis.com/youtube/v3",
		client:  client,
	}
}

func (y *YouTube) Name() string { return types.ToolSearchVideos }
func (y *YouTube) Description() string {
	return "Search YouTube for travel videos: city guides, food tours, hotel reviews and walking tours."
}
func (y *YouTube) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query, e.g. 'Kyoto food tour'"},
			"max_results": {"type": "integer", "description": "Number of videos (default: 5, max: 10)"}
		},
		"required": ["query"]
	}`)
}

type videoParams struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func (p *videoParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return errors.New("query is required")
	}
	if p.MaxResults <= 0 {
		p.MaxResults = 5
	}
	p.MaxResults = min(p.MaxResults, 10)
	return nil
}

func (y *YouTube) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var params videoParams
	if err := runtime.DecodeParams(args, &params); err != nil {
		return nil, err
	}
	videos, err := y.SearchVideos(ctx, params.Query, params.MaxResults)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sources := lo.Map(videos, func(v types.Video, i int) types.Citation {
		return types.Citation{
			URL:        v.URL,
			Title:      v.Title,
			Snippet:    v.ChannelTitle,
			Timestamp:  now,
			Confidence: rankConfidence(i, 0.75),
		}
	})
	return types.Succeeded(&types.VideoSearchResult{Query: params.Query, Videos: videos}, sources...), nil
}

type ytThumbnail struct {
	URL string `json:"url"`
}

type ytSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
			Thumbnails   map[string]ytThumbnail `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

type ytVideosResponse struct {
	Items []struct {
		ID             string `json:"id"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// SearchVideos returns up to limit videos for query with duration and view
// counts filled in. Results are cached per query.
func (y *YouTube) SearchVideos(ctx context.Context, query string, limit int) ([]types.Video, error) {
	key := fmt.Sprintf("youtube:%d:%s", limit, strings.ToLower(strings.TrimSpace(query)))
	return Cached(y.client, key, 30*time.Minute, func() ([]types.Video, error) {
		var search ytSearchResponse
		err := y.client.GetJSON(ctx, "YouTube", y.baseURL+"/search", map[string]string{
			"part":              "snippet",
			"type":              "video",
			"q":                 query,
			"maxResults":        strconv.Itoa(limit),
			"relevanceLanguage": "en",
			"videoEmbeddable":   "true",
			"key":               y.apiKey,
		}, nil, &search)
		if err != nil {
			return nil, err
		}

		var videos []types.Video
		for _, item := range search.Items {
			if item.ID.VideoID == "" {
				continue
			}
			s := item.Snippet
			videos = append(videos, types.Video{
				ID:           item.ID.VideoID,
				Title:        html.UnescapeString(s.Title),
				Description:  html.UnescapeString(s.Description),
				Thumbnail:    bestThumbnail(s.Thumbnails),
				ChannelTitle: s.ChannelTitle,
				PublishedAt:  s.PublishedAt,
				URL:          "https://www.youtube.com/watch?v=" + item.ID.VideoID,
			})
		}
		if len(videos) == 0 {
			return nil, nil
		}
		if err := y.fillDetails(ctx, videos); err != nil {
			slog.Debug("youtube video details failed", "query", query, "error", err)
		}
		return videos, nil
	})
}

func (y *YouTube) fillDetails(ctx context.Context, videos []types.Video) error {
	ids := lo.Map(videos, func(v types.Video, _ int) string { return v.ID })
	var resp ytVideosResponse
	err := y.client.GetJSON(ctx, "YouTube", y.baseURL+"/videos", map[string]string{
		"part": "contentDetails,statistics",
		"id":   strings.Join(ids, ","),
		"key":  y.apiKey,
	}, nil, &resp)
	if err != nil {
		return err
	}
	byID := make(map[string]int, len(videos))
	for i, v := range videos {
		byID[v.ID] = i
	}
	for _, item := range resp.Items {
		i, ok := byID[item.ID]
		if !ok {
			continue
		}
		videos[i].Duration = formatDuration(item.ContentDetails.Duration)
		if n, err := strconv.ParseInt(item.Statistics.ViewCount, 10, 64); err == nil {
			videos[i].ViewCount = n
		}
	}
	return nil
}

func bestThumbnail(thumbs map[string]ytThumbnail) string {
	for _, size := range []string{"high", "medium", "default"} {
		if t, ok := thumbs[size]; ok {
			return t.URL
		}
	}
	return ""
}

// formatDuration converts an ISO 8601 duration such as PT1H2M3S to 1:02:03.
func formatDuration(iso string) string {
	m := isoDuration.FindStringSubmatch(iso)
	if m == nil {
		return ""
	}
	h, _ := strconv.Atoi(lo.CoalesceOrEmpty(m[1], "0"))
	mins, _ := strconv.Atoi(lo.CoalesceOrEmpty(m[2], "0"))
	sec, _ := strconv.Atoi(lo.CoalesceOrEmpty(m[3], "0"))
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, sec)
	}
	return fmt.Sprintf("%d:%02d", mins, sec)
}

