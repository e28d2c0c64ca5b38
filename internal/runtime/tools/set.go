package tools

import (
	"log/slog"

	"github.com/user/wayfarer/internal/config"
	"github.com/user/wayfarer/internal/runtime"
)

// Set is the tool collaborators built from one configuration.
type Set struct {
	Client *Client
	Tools  []runtime.Tool

	// YouTube and Transcripts back the video pipeline. YouTube is nil when
	// no API key is configured.
	YouTube     *YouTube
	Transcripts *Transcripts
}

// FromConfig builds every tool whose credentials are present. Weather and
// read_url need none and are always included.
func FromConfig(cfg *config.Config) *Set {
	client := NewClient(ClientOptions{
		Timeout:    cfg.ToolTimeout(),
		CacheTTL:   cfg.CacheTTL(),
		MaxRetries: cfg.Tools.MaxRetries,
	})
	s := &Set{Client: client, Transcripts: NewTranscripts(client)}

	s.Tools = append(s.Tools, NewWeather(client), NewReadURL(client))
	if key := cfg.GooglePlaces.APIKey; key != "" {
		s.Tools = append(s.Tools, NewPlaces(client, key))
	}
	if cfg.Amadeus.ClientID != "" && cfg.Amadeus.ClientSecret != "" {
		s.Tools = append(s.Tools, NewHotels(client, cfg.Amadeus.BaseURL, cfg.Amadeus.ClientID, cfg.Amadeus.ClientSecret))
	}
	if key := cfg.Ticketmaster.APIKey; key != "" {
		s.Tools = append(s.Tools, NewEvents(client, key))
	}
	if cfg.Reddit.ClientID != "" && cfg.Reddit.ClientSecret != "" {
		s.Tools = append(s.Tools, NewReddit(client, cfg.Reddit.ClientID, cfg.Reddit.ClientSecret, cfg.Reddit.UserAgent))
	}
	if key := cfg.Brave.APIKey; key != "" {
		s.Tools = append(s.Tools, NewWebSearch(client, key))
	}
	if key := cfg.YouTube.APIKey; key != "" {
		s.YouTube = NewYouTube(client, key)
		s.Tools = append(s.Tools, s.YouTube)
	}
	return s
}

// Register adds every tool in the set to r.
func (s *Set) Register(r *runtime.Registry) {
	for _, t := range s.Tools {
		r.Register(t)
	}
	slog.Info("tools registered", "tools", r.Names())
}
