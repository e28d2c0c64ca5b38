package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-resty/resty/v2"
	"github.com/samber/lo"

	"github.com/user/wayfarer/internal/runtime"
	"github.com/user/wayfarer/internal/types"
)

const maxHotelIDs = 20

// Hotels searches bookable hotel offers with the Amadeus Self-Service APIs.
type Hotels struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *Client
	now          func() time.Time
}

// NewHotels creates the search_hotel_offers tool. baseURL selects the
// Amadeus test or production environment.
func NewHotels(client *Client, baseURL, clientID, clientSecret string) *Hotels {
	if baseURL == "" {
		baseURL = "https://test.api.amadeus.com"
	}
	return &Hotels{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       client,
		now:          time.Now,
	}
}

func (h *Hotels) Name() string { return types.ToolSearchHotels }
func (h *Hotels) Description() string {
	return "Search available hotel offers in a city with nightly prices. Dates default to tomorrow for one night."
}
func (h *Hotels) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"city": {"type": "string", "description": "City name, e.g. 'Paris'"},
			"check_in": {"type": "string", "description": "Check-in date, YYYY-MM-DD"},
			"check_out": {"type": "string", "description": "Check-out date, YYYY-MM-DD"},
			"adults": {"type": "integer", "description": "Number of adult guests (default: 2)"},
			"max_price": {"type": "number", "description": "Maximum price per night"}
		},
		"required": ["city"]
	}`)
}

type hotelParams struct {
	City     string  `json:"city"`
	CheckIn  string  `json:"check_in"`
	CheckOut string  `json:"check_out"`
	Adults   int     `json:"adults"`
	MaxPrice float64 `json:"max_price"`
}

func (p *hotelParams) Validate() error {
	p.City = strings.TrimSpace(p.City)
	if p.City == "" {
		return errors.New("city is required")
	}
	if p.Adults <= 0 {
		p.Adults = 2
	}
	if p.Adults > 9 {
		return errors.New("adults must be at most 9")
	}
	if p.MaxPrice < 0 {
		return errors.New("max_price must not be negative")
	}
	for _, d := range []string{p.CheckIn, p.CheckOut} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return fmt.Errorf("invalid date %q, want YYYY-MM-DD", d)
		}
	}
	return nil
}

// stay fills in missing dates and returns the number of nights.
func (p *hotelParams) stay(now time.Time) (int, error) {
	if p.CheckIn == "" {
		p.CheckIn = now.AddDate(0, 0, 1).Format(time.DateOnly)
	}
	in, _ := time.Parse(time.DateOnly, p.CheckIn)
	if p.CheckOut == "" {
		p.CheckOut = in.AddDate(0, 0, 1).Format(time.DateOnly)
	}
	out, _ := time.Parse(time.DateOnly, p.CheckOut)
	nights := int(out.Sub(in).Hours() / 24)
	if nights <= 0 {
		return 0, fmt.Errorf("%w: check_out must be after check_in", runtime.ErrInvalidParameters)
	}
	return nights, nil
}

type oauthToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type amadeusHotel struct {
	HotelID   string  `json:"hotelId"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	GeoCode   *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"geoCode"`
	Rating    string   `json:"rating"`
	Amenities []string `json:"amenities"`
}

type amadeusOffers struct {
	Data []struct {
		Hotel     amadeusHotel `json:"hotel"`
		Available bool         `json:"available"`
		Offers    []struct {
			ID    string `json:"id"`
			Price struct {
				Total    string `json:"total"`
				Currency string `json:"currency"`
			} `json:"price"`
			Room struct {
				Description struct {
					Text string `json:"text"`
				} `json:"description"`
			} `json:"room"`
		} `json:"offers"`
	} `json:"data"`
}

func (h *Hotels) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	var params hotelParams
	if err := runtime.DecodeParams(args, &params); err != nil {
		return nil, err
	}
	nights, err := params.stay(h.now())
	if err != nil {
		return nil, err
	}

	token, err := h.token(ctx)
	if err != nil {
		return nil, err
	}
	auth := map[string]string{"Authorization": "Bearer " + token}

	cityCode, err := h.cityCode(ctx, auth, params.City)
	if err != nil {
		return nil, err
	}
	ids, err := h.hotelIDs(ctx, auth, cityCode)
	if err != nil {
		return nil, err
	}
	result := &types.HotelsResult{City: params.City, CheckIn: params.CheckIn, CheckOut: params.CheckOut}
	if len(ids) == 0 {
		return types.Succeeded(result), nil
	}

	var offers amadeusOffers
	err = h.client.GetJSON(ctx, "Amadeus", h.baseURL+"/v3/shopping/hotel-offers", map[string]string{
		"hotelIds":     strings.Join(ids, ","),
		"adults":       strconv.Itoa(params.Adults),
		"checkInDate":  params.CheckIn,
		"checkOutDate": params.CheckOut,
		"bestRateOnly": "true",
	}, auth, &offers)
	if err != nil {
		return nil, err
	}

	now := h.now()
	var sources []types.Citation
	for _, d := range offers.Data {
		if !d.Available || len(d.Offers) == 0 {
			continue
		}
		offer := d.Offers[0]
		total, err := strconv.ParseFloat(offer.Price.Total, 64)
		if err != nil {
			continue
		}
		perNight := total / float64(nights)
		if params.MaxPrice > 0 && perNight > params.MaxPrice {
			continue
		}

		hotel := types.HotelOffer{
			ID:          d.Hotel.HotelID,
			Name:        titleCase(d.Hotel.Name),
			Location:    hotelLocation(d.Hotel),
			Price:       &types.Money{Amount: roundCents(perNight), Currency: offer.Price.Currency},
			Amenities:   d.Hotel.Amenities,
			Description: offer.Room.Description.Text,
		}
		if r, err := strconv.ParseFloat(d.Hotel.Rating, 64); err == nil {
			hotel.Rating = r
		}
		result.Hotels = append(result.Hotels, hotel)
		sources = append(sources, types.Citation{
			URL:        h.baseURL + "/v3/shopping/hotel-offers/" + offer.ID,
			Title:      hotel.Name,
			Snippet:    fmt.Sprintf("%.2f %s per night", hotel.Price.Amount, hotel.Price.Currency),
			Timestamp:  now,
			Confidence: 0.85,
		})
	}
	sort.SliceStable(result.Hotels, func(i, j int) bool {
		return result.Hotels[i].Price.Amount < result.Hotels[j].Price.Amount
	})
	return types.Succeeded(result, sources...), nil
}

// token returns a cached client-credentials access token.
func (h *Hotels) token(ctx context.Context) (string, error) {
	key := "amadeus:token:" + h.clientID
	if v, ok := h.client.cache.Get(key); ok {
		return v.(string), nil
	}
	var tok oauthToken
	err := h.client.Do(ctx, "Amadeus auth", func() (*resty.Response, error) {
		return h.client.R(ctx).SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     h.clientID,
			"client_secret": h.clientSecret,
		}).Post(h.baseURL + "/v1/security/oauth2/token")
	}, &tok)
	if err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errors.New("amadeus auth: empty access token")
	}
	ttl := time.Duration(max(tok.ExpiresIn-60, 30)) * time.Second
	h.client.cache.Set(key, tok.AccessToken, ttl)
	return tok.AccessToken, nil
}

func (h *Hotels) cityCode(ctx context.Context, auth map[string]string, city string) (string, error) {
	if len(city) == 3 && strings.ToUpper(city) == city {
		return city, nil
	}
	return Cached(h.client, "amadeus:city:"+strings.ToLower(city), 24*time.Hour, func() (string, error) {
		var resp struct {
			Data []struct {
				IATACode string `json:"iataCode"`
			} `json:"data"`
		}
		err := h.client.GetJSON(ctx, "Amadeus", h.baseURL+"/v1/reference-data/locations/cities",
			map[string]string{"keyword": strings.ToUpper(city), "max": "5"}, auth, &resp)
		if err != nil {
			return "", err
		}
		for _, d := range resp.Data {
			if d.IATACode != "" {
				return d.IATACode, nil
			}
		}
		return "", fmt.Errorf("no city code found for %q", city)
	})
}

func (h *Hotels) hotelIDs(ctx context.Context, auth map[string]string, cityCode string) ([]string, error) {
	var resp struct {
		Data []amadeusHotel `json:"data"`
	}
	err := h.client.GetJSON(ctx, "Amadeus", h.baseURL+"/v1/reference-data/locations/hotels/by-city",
		map[string]string{"cityCode": cityCode, "radius": "10", "radiusUnit": "KM"}, auth, &resp)
	if err != nil {
		return nil, err
	}
	ids := lo.FilterMap(resp.Data, func(d amadeusHotel, _ int) (string, bool) {
		return d.HotelID, d.HotelID != ""
	})
	return lo.Slice(ids, 0, maxHotelIDs), nil
}

func hotelLocation(h amadeusHotel) *types.LatLng {
	switch {
	case h.GeoCode != nil:
		return &types.LatLng{Lat: h.GeoCode.Latitude, Lng: h.GeoCode.Longitude}
	case h.Latitude != 0 || h.Longitude != 0:
		return &types.LatLng{Lat: h.Latitude, Lng: h.Longitude}
	}
	return nil
}

// titleCase turns Amadeus' upper-case hotel names into title case.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func roundCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
