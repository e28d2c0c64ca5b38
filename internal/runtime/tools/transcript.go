package tools

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
)

// ErrNoTranscript is returned when a video has no captions in the
// requested language.
var ErrNoTranscript = errors.New("no transcript available")

// Transcripts fetches YouTube caption tracks from the public timedtext
// endpoint.
type Transcripts struct {
	baseURL string
	lang    string
	client  *Client
}

// NewTranscripts creates a transcript source for English captions.
func NewTranscripts(client *Client) *Transcripts {
	return &Transcripts{
		baseURL: "https://video.google.com/timedtext",
		lang:    "en",
		client:  client,
	}
}

type timedText struct {
	Lines []struct {
		Text string `xml:",chardata"`
	} `xml:"text"`
}

// Transcript returns the caption text of a video as one whitespace-joined
// string. Transcripts are cached for six hours.
func (t *Transcripts) Transcript(ctx context.Context, videoID string) (string, error) {
	if videoID == "" {
		return "", errors.New("video id is required")
	}
	return Cached(t.client, "transcript:"+t.lang+":"+videoID, 6*time.Hour, func() (string, error) {
		var body []byte
		err := t.client.retry.Execute(ctx, func() error {
			resp, err := t.client.R(ctx).
				SetHeader("Accept", "text/xml").
				SetQueryParams(map[string]string{"lang": t.lang, "v": videoID}).
				Get(t.baseURL)
			if err != nil {
				return fmt.Errorf("timedtext request: %w", err)
			}
			if resp.IsError() {
				return &StatusError{Provider: "timedtext", Code: resp.StatusCode(), Body: resp.String()}
			}
			body = resp.Body()
			return nil
		})
		if err != nil {
			return "", err
		}
		if len(strings.TrimSpace(string(body))) == 0 {
			return "", ErrNoTranscript
		}

		var tt timedText
		if err := xml.Unmarshal(body, &tt); err != nil {
			return "", fmt.Errorf("parse transcript: %w", err)
		}
		parts := make([]string, 0, len(tt.Lines))
		for _, l := range tt.Lines {
			if line := strings.Join(strings.Fields(html.UnescapeString(l.Text)), " "); line != "" {
				parts = append(parts, line)
			}
		}
		if len(parts) == 0 {
			return "", ErrNoTranscript
		}
		return strings.Join(parts, " "), nil
	})
}
