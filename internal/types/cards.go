package types

import (
	"encoding/json"
	"strings"
)

// CardType tags which optional PlaceCard fields a consumer should expect.
type CardType string

const (
	CardLocation   CardType = "location"
	CardRestaurant CardType = "restaurant"
	CardHotel      CardType = "hotel"
	CardActivity   CardType = "activity"
)

// NormalizeCardType maps any unknown or empty tag to CardLocation.
func NormalizeCardType(s string) CardType {
	switch t := CardType(strings.ToLower(strings.TrimSpace(s))); t {
	case CardRestaurant, CardHotel, CardActivity, CardLocation:
		return t
	default:
		return CardLocation
	}
}

// UnmarshalJSON normalizes the tag, so cards read back from storage or sent
// by clients always carry one of the known types.
func (c *CardType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = NormalizeCardType(s)
	return nil
}

// PlaceCard is the normalized point of interest handed to presentation layers.
// At most one of Price, PriceLevel or PriceRange is set.
type PlaceCard struct {
	ID           string      `json:"id"`
	Type         CardType    `json:"type"`
	Name         string      `json:"name"`
	Address      string      `json:"address,omitempty"`
	Coordinates  *LatLng     `json:"coordinates,omitempty"`
	Photos       []string    `json:"photos"`
	Rating       float64     `json:"rating,omitempty"`
	ReviewCount  int         `json:"reviewCount,omitempty"`
	Price        *Money      `json:"price,omitempty"`
	PriceLevel   int         `json:"priceLevel,omitempty"`
	PriceRange   *PriceRange `json:"priceRange,omitempty"`
	Cuisine      string      `json:"cuisine,omitempty"`
	Amenities    []string    `json:"amenities,omitempty"`
	OpeningHours []string    `json:"openingHours,omitempty"`
	Duration     string      `json:"duration,omitempty"`
	Description  string      `json:"description,omitempty"`
	URL          string      `json:"url,omitempty"`
	Source       string      `json:"source"`
}
