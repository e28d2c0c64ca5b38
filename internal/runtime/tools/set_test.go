package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/wayfarer/internal/config"
	"github.com/user/wayfarer/internal/runtime"
	"github.com/user/wayfarer/internal/types"
)

func TestFromConfigRegistersConfiguredTools(t *testing.T) {
	cfg := &config.Config{}
	s := FromConfig(cfg)
	r := runtime.NewRegistry()
	s.Register(r)

	assert.Equal(t, []string{types.ToolGetWeather, types.ToolReadURL}, r.Names())
	assert.Nil(t, s.YouTube)
	assert.NotNil(t, s.Transcripts)

	cfg.GooglePlaces.APIKey = "g"
	cfg.Amadeus.ClientID, cfg.Amadeus.ClientSecret = "id", "secret"
	cfg.Ticketmaster.APIKey = "t"
	cfg.Reddit.ClientID, cfg.Reddit.ClientSecret = "rid", "rsecret"
	cfg.Brave.APIKey = "b"
	cfg.YouTube.APIKey = "y"

	s = FromConfig(cfg)
	r = runtime.NewRegistry()
	s.Register(r)

	assert.Len(t, r.Names(), 8)
	assert.NotNil(t, s.YouTube)
	_, ok := r.Get(types.ToolSearchHotels)
	assert.True(t, ok)
}
