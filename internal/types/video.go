package types

import "fmt"

// Video is one video result, optionally carrying a deep analysis.
type Video struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Thumbnail    string         `json:"thumbnail,omitempty"`
	ChannelTitle string         `json:"channelTitle,omitempty"`
	Duration     string         `json:"duration,omitempty"`
	ViewCount    int64          `json:"viewCount,omitempty"`
	PublishedAt  string         `json:"publishedAt,omitempty"`
	URL          string         `json:"url"`
	Analysis     *VideoAnalysis `json:"analysis,omitempty"`
}

// WatchURL returns URL, or the canonical YouTube watch link for the id.
func (v Video) WatchURL() string {
	if v.URL != "" {
		return v.URL
	}
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", v.ID)
}

// VideoAnalysis is the transcript-derived summary of one video. Fallback is
// true when the analysis call failed and Summary is generic.
type VideoAnalysis struct {
	VideoID    string   `json:"videoId"`
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	Places     []string `json:"places"`
	Fallback   bool     `json:"fallback,omitempty"`
}

// SmartVideoResult bundles an answer synthesized from several analyzed
// videos with the videos it was built from.
type SmartVideoResult struct {
	Response    string   `json:"response"`
	Topics      []string `json:"topics"`
	Videos      []Video  `json:"videos"`
	Synthesized bool     `json:"synthesized"`
}
