// Package cards turns place, hotel and event tool results into the
// normalized PlaceCard shape shown by presentation layers.
package cards

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/user/wayfarer/internal/types"
)

// Extract converts the successful results of card-producing tools into cards,
// in tool call order. Failed calls and other tools contribute nothing. Cards
// are not de-duplicated across tools.
func Extract(calls []types.ToolCall) []types.PlaceCard {
	var out []types.PlaceCard
	for i, call := range calls {
		if call.Result == nil || !call.Result.Success {
			continue
		}
		switch data := call.Result.Data.(type) {
		case *types.PlacesResult:
			for j, p := range data.Places {
				out = append(out, fromPlace(p, cardID(p.ID, call.Name, i, j)))
			}
		case *types.HotelsResult:
			for j, h := range data.Hotels {
				out = append(out, fromHotel(h, cardID(h.ID, call.Name, i, j)))
			}
		case *types.EventsResult:
			for j, e := range data.Events {
				out = append(out, fromEvent(e, cardID(e.ID, call.Name, i, j)))
			}
		}
	}
	return out
}

// cardID keeps the provider id when present. Otherwise it derives one from
// the tool and positions, which is unique within a turn.
func cardID(id, tool string, call, item int) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return fmt.Sprintf("%s-%d-%d", tool, call, item)
}

func photos(urls []string) []string {
	return lo.Filter(urls, func(u string, _ int) bool { return strings.TrimSpace(u) != "" })
}

var (
	restaurantTypes = []string{"restaurant", "cafe", "bar", "bakery", "food", "meal_takeaway", "meal_delivery", "coffee_shop"}
	hotelTypes      = []string{"lodging", "hotel", "hostel", "motel", "resort_hotel", "bed_and_breakfast", "guest_house"}
	activityTypes   = []string{"tourist_attraction", "museum", "park", "amusement_park", "zoo", "aquarium", "art_gallery", "night_club", "stadium", "church", "hiking_area", "beach"}
)

// PlaceType resolves a Places record's card type from its primary type, then
// its other types, in order.
func PlaceType(primary string, all []string) types.CardType {
	candidates := append([]string{primary}, all...)
	for _, c := range candidates {
		c = strings.ToLower(c)
		switch {
		case c == "":
			continue
		case lo.Contains(restaurantTypes, c) || strings.HasSuffix(c, "_restaurant"):
			return types.CardRestaurant
		case lo.Contains(hotelTypes, c):
			return types.CardHotel
		case lo.Contains(activityTypes, c):
			return types.CardActivity
		}
	}
	return types.CardLocation
}

// cuisine derives a readable cuisine from types like "japanese_restaurant".
func cuisine(primary string, all []string) string {
	for _, t := range append([]string{primary}, all...) {
		if name, ok := strings.CutSuffix(t, "_restaurant"); ok && name != "" {
			return strings.ReplaceAll(name, "_", " ")
		}
	}
	return ""
}

func fromPlace(p types.Place, id string) types.PlaceCard {
	card := types.PlaceCard{
		ID:           id,
		Type:         PlaceType(p.PrimaryType, p.Types),
		Name:         p.Name,
		Address:      p.Address,
		Coordinates:  p.Location,
		Photos:       photos(p.Photos),
		Rating:       p.Rating,
		ReviewCount:  p.ReviewCount,
		OpeningHours: p.OpeningHours,
		Description:  p.Summary,
		URL:          p.Website,
		Source:       types.ToolSearchPlaces,
	}
	if p.PriceLevel >= 1 && p.PriceLevel <= 4 {
		card.PriceLevel = p.PriceLevel
	}
	if card.Type == types.CardRestaurant {
		card.Cuisine = cuisine(p.PrimaryType, p.Types)
	}
	return card
}

func fromHotel(h types.HotelOffer, id string) types.PlaceCard {
	return types.PlaceCard{
		ID:          id,
		Type:        types.CardHotel,
		Name:        h.Name,
		Address:     h.Address,
		Coordinates: h.Location,
		Photos:      photos(h.Photos),
		Rating:      h.Rating,
		Price:       h.Price,
		Amenities:   h.Amenities,
		Description: h.Description,
		Source:      types.ToolSearchHotels,
	}
}

func fromEvent(e types.EventListing, id string) types.PlaceCard {
	desc := e.Venue
	if e.Start != "" {
		desc = strings.TrimSpace(fmt.Sprintf("%s %s", e.Start, lo.Ternary(e.Venue != "", "at "+e.Venue, "")))
	}
	return types.PlaceCard{
		ID:          id,
		Type:        types.CardActivity,
		Name:        e.Name,
		Address:     e.Address,
		Coordinates: e.Location,
		Photos:      photos(e.Photos),
		PriceRange:  e.PriceRange,
		Description: desc,
		URL:         e.URL,
		Source:      types.ToolSearchEvents,
	}
}
