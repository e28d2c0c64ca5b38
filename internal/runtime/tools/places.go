package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samber/lo"

	"github.com/user/wayfarer/internal/runtime"
	"github.com/user/wayfarer/internal/types"
)

const placesFieldMask = "places.id,places.displayName,places.formattedAddress,places.location," +
	"places.primaryType,places.types,places.rating,places.userRatingCount,places.priceLevel," +
	"places.photos,places.regularOpeningHours,places.websiteUri,places.googleMapsUri,places.editorialSummary"

// Places searches points of interest with the Google Places Text Search API.
type Places struct {
	apiKey  string
	baseURL string
	client  *Client
}

// NewPlaces creates the search_places tool.
func NewPlaces(client *Client, apiKey string) *Places {
	return &Places{
		apiKey:  apiKey,
		baseURL: "https://places.googleapis.com/v1",
		client:  client,
	}
}

func (p *Places) Name() string { return types.ToolSearchPlaces }
func (p *Places) Description() string {
	return "Search for restaurants, attractions, hotels and other places. Returns ratings, price level, photos and opening hours."
}
func (p *Places) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "What to look for, e.g. 'ramen' or 'rooftop bars'"},
			"location": {"type": "string", "description": "City or area to search in"},
			"type": {"type": "string", "description": "Optional place type filter, e.g. restaurant, museum, lodging"},
			"max_results": {"type": "integer", "description": "Number of places (default: 8, max: 20)"}
		},
		"required": ["query"]
	}`)
}

type placesParams struct {
	Query      string `json:"query"`
	Location   string `json:"location"`
	Type       string `json:"type"`
	MaxResults int    `json:"max_results"`
}

func (p *placesParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return errors.New("query is required")
	}
	if p.MaxResults <= 0 {
		p.MaxResults = 8
	}
	p.MaxResults = min(p.MaxResults, 20)
	return nil
}

func (p *placesParams) textQuery() string {
	if loc := strings.TrimSpace(p.Location); loc != "" {
		return p.Query + " in " + loc
	}
	return p.Query
}

type placesRequest struct {
	TextQuery      string `json:"textQuery"`
	IncludedType   string `json:"includedType,omitempty"`
	MaxResultCount int    `json:"maxResultCount"`
}

type placesResponse struct {
	Places []googlePlace `json:"places"`
}

type googlePlace struct {
	ID          string `json:"id"`
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress string `json:"formattedAddress"`
	Location         *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	PrimaryType     string   `json:"primaryType"`
	Types           []string `json:"types"`
	Rating          float64  `json:"rating"`
	UserRatingCount int      `json:"userRatingCount"`
	PriceLevel      string   `json:"priceLevel"`
	Photos          []struct {
		Name string `json:"name"`
	} `json:"photos"`
	RegularOpeningHours *struct {
		WeekdayDescriptions []string `json:"weekdayDescriptions"`
	} `json:"regularOpeningHours"`
	WebsiteURI       string `json:"websiteUri"`
	GoogleMapsURI    string `json:"googleMapsUri"`
	EditorialSummary *struct {
		Text string `json:"text"`
	} `json:"editorialSummary"`
}

var priceLevels = map[string]int{
	"PRICE_LEVEL_FREE":           0,
	"PRICE_LEVEL_INEXPENSIVE":    1,
	"PRICE_LEVEL_MODERATE":       2,
	"PRICE_LEVEL_EXPENSIVE":      3,
	"PRICE_LEVEL_VERY_EXPENSIVE": 4,
}

func (p *Places) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var params placesParams
	if err := runtime.DecodeParams(args, &params); err != nil {
		return nil, err
	}

	body := placesRequest{
		TextQuery:      params.textQuery(),
		IncludedType:   params.Type,
		MaxResultCount: params.MaxResults,
	}
	var resp placesResponse
	err := p.client.Do(ctx, "Google Places", func() (*resty.Response, error) {
		return p.client.R(ctx).
			SetHeader("X-Goog-Api-Key", p.apiKey).
			SetHeader("X-Goog-FieldMask", placesFieldMask).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(p.baseURL + "/places:searchText")
	}, &resp)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	places := lo.Map(resp.Places, func(g googlePlace, _ int) types.Place { return p.convert(g) })
	sources := lo.FilterMap(resp.Places, func(g googlePlace, i int) (types.Citation, bool) {
		return types.Citation{
			URL:        g.GoogleMapsURI,
			Title:      g.DisplayName.Text,
			Snippet:    g.FormattedAddress,
			Timestamp:  now,
			Confidence: rankConfidence(i, 0.9),
		}, g.GoogleMapsURI != ""
	})
	return types.Succeeded(&types.PlacesResult{Query: body.TextQuery, Places: places}, sources...), nil
}

func (p *Places) convert(g googlePlace) types.Place {
	place := types.Place{
		ID:          g.ID,
		Name:        g.DisplayName.Text,
		Address:     g.FormattedAddress,
		PrimaryType: g.PrimaryType,
		Types:       g.Types,
		Rating:      g.Rating,
		ReviewCount: g.UserRatingCount,
		PriceLevel:  priceLevels[g.PriceLevel],
		Website:     g.WebsiteURI,
	}
	if g.Location != nil {
		place.Location = &types.LatLng{Lat: g.Location.Latitude, Lng: g.Location.Longitude}
	}
	if g.RegularOpeningHours != nil {
		place.OpeningHours = g.RegularOpeningHours.WeekdayDescriptions
	}
	if g.EditorialSummary != nil {
		place.Summary = g.EditorialSummary.Text
	}
	for _, ph := range lo.Slice(g.Photos, 0, 5) {
		place.Photos = append(place.Photos, p.photoURL(ph.Name))
	}
	return place
}

func (p *Places) photoURL(name string) string {
	return fmt.Sprintf("%s/%s/media?maxWidthPx=800&key=%s", p.baseURL, name, url.QueryEscape(p.apiKey))
}
