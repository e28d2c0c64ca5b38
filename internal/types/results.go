package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tool names known to the assistant.
const (
	ToolSearchPlaces = "search_places"
	ToolGetWeather   = "get_weather"
	ToolSearchHotels = "search_hotel_offers"
	ToolSearchEvents = "search_events"
	ToolSearchReddit = "search_reddit"
	ToolWebSearch    = "web_search"
	ToolSearchVideos = "search_videos"
	ToolReadURL      = "read_url"
)

// ToolResult is the envelope every tool returns. Success implies Data is set;
// a failed result carries a human-readable Error and no trusted Data.
type ToolResult struct {
	Success   bool       `json:"success"`
	Data      Payload    `json:"data,omitempty"`
	Sources   []Citation `json:"sources,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Succeeded wraps a payload in a successful envelope.
func Succeeded(data Payload, sources ...Citation) *ToolResult {
	return &ToolResult{
		Success:   true,
		Data:      data,
		Sources:   sources,
		Timestamp: time.Now(),
	}
}

// Failed builds a failed envelope.
func Failed(format string, args ...any) *ToolResult {
	return &ToolResult{
		Success:   false,
		Error:     fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

// Payload is the typed data of a successful tool result, one variant per tool.
type Payload interface {
	ToolName() string
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

type PriceRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency,omitempty"`
}

type PlacesResult struct {
	Query  string  `json:"query"`
	Places []Place `json:"places"`
}

type Place struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name"`
	Address      string   `json:"address,omitempty"`
	Location     *LatLng  `json:"location,omitempty"`
	PrimaryType  string   `json:"primaryType,omitempty"`
	Types        []string `json:"types,omitempty"`
	Rating       float64  `json:"rating,omitempty"`
	ReviewCount  int      `json:"reviewCount,omitempty"`
	PriceLevel   int      `json:"priceLevel,omitempty"`
	Photos       []string `json:"photos,omitempty"`
	OpeningHours []string `json:"openingHours,omitempty"`
	Website      string   `json:"website,omitempty"`
	Summary      string   `json:"summary,omitempty"`
}

type WeatherResult struct {
	Location  string          `json:"location"`
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Timezone  string          `json:"timezone,omitempty"`
	Current   *CurrentWeather `json:"current,omitempty"`
	Daily     []DailyForecast `json:"daily"`
}

type CurrentWeather struct {
	TemperatureC float64 `json:"temperatureC"`
	WindKph      float64 `json:"windKph"`
	Condition    string  `json:"condition"`
}

type DailyForecast struct {
	Date                     string  `json:"date"`
	MaxC                     float64 `json:"maxC"`
	MinC                     float64 `json:"minC"`
	PrecipitationProbability int     `json:"precipitationProbability"`
	Condition                string  `json:"condition"`
}

type HotelsResult struct {
	City     string       `json:"city"`
	CheckIn  string       `json:"checkIn,omitempty"`
	CheckOut string       `json:"checkOut,omitempty"`
	Hotels   []HotelOffer `json:"hotels"`
}

type HotelOffer struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Address     string   `json:"address,omitempty"`
	Location    *LatLng  `json:"location,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	Price       *Money   `json:"price,omitempty"`
	Amenities   []string `json:"amenities,omitempty"`
	Photos      []string `json:"photos,omitempty"`
	Description string   `json:"description,omitempty"`
}

type EventsResult struct {
	City   string         `json:"city"`
	Events []EventListing `json:"events"`
}

type EventListing struct {
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name"`
	URL        string      `json:"url,omitempty"`
	Venue      string      `json:"venue,omitempty"`
	Address    string      `json:"address,omitempty"`
	Location   *LatLng     `json:"location,omitempty"`
	Start      string      `json:"start,omitempty"`
	Category   string      `json:"category,omitempty"`
	PriceRange *PriceRange `json:"priceRange,omitempty"`
	Photos     []string    `json:"photos,omitempty"`
}

type RedditResult struct {
	Query string       `json:"query"`
	Posts []RedditPost `json:"posts"`
}

type RedditPost struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Subreddit   string `json:"subreddit"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	NumComments int    `json:"numComments"`
	Snippet     string `json:"snippet,omitempty"`
}

type WebSearchResult struct {
	Query   string      `json:"query"`
	Results []WebResult `json:"results"`
}

type WebResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type VideoSearchResult struct {
	Query  string  `json:"query"`
	Videos []Video `json:"videos"`
}

type PageResult struct {
	URL       string `json:"url"`
	Markdown  string `json:"markdown"`
	Truncated bool   `json:"truncated,omitempty"`
}

func (PlacesResult) ToolName() string      { return ToolSearchPlaces }
func (WeatherResult) ToolName() string     { return ToolGetWeather }
func (HotelsResult) ToolName() string      { return ToolSearchHotels }
func (EventsResult) ToolName() string      { return ToolSearchEvents }
func (RedditResult) ToolName() string      { return ToolSearchReddit }
func (WebSearchResult) ToolName() string   { return ToolWebSearch }
func (VideoSearchResult) ToolName() string { return ToolSearchVideos }
func (PageResult) ToolName() string        { return ToolReadURL }

// DecodePayload decodes raw result data into the variant registered for the
// tool name. Empty or null data decodes to a nil payload; unknown tools are
// an error.
func DecodePayload(tool string, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var p Payload
	switch tool {
	case ToolSearchPlaces:
		p = &PlacesResult{}
	case ToolGetWeather:
		p = &WeatherResult{}
	case ToolSearchHotels:
		p = &HotelsResult{}
	case ToolSearchEvents:
		p = &EventsResult{}
	case ToolSearchReddit:
		p = &RedditResult{}
	case ToolWebSearch:
		p = &WebSearchResult{}
	case ToolSearchVideos:
		p = &VideoSearchResult{}
	case ToolReadURL:
		p = &PageResult{}
	default:
		return nil, fmt.Errorf("unknown tool %q", tool)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, err
	}
	return p, nil
}
