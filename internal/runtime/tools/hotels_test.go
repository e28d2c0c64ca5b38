package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/wayfarer/internal/runtime"
	"github.com/user/wayfarer/internal/types"
)

func amadeusServer(t *testing.T, tokens *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/security/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		tokens.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "id", r.PostForm.Get("client_id"))
		w.Write([]byte(`{"access_token":"tok","expires_in":1799}`))
	})
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("/v1/reference-data/locations/cities", authed(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PARIS", r.URL.Query().Get("keyword"))
		w.Write([]byte(`{"data":[{"iataCode":"PAR"}]}`))
	}))
	mux.HandleFunc("/v1/reference-data/locations/hotels/by-city", authed(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PAR", r.URL.Query().Get("cityCode"))
		w.Write([]byte(`{"data":[{"hotelId":"H1"},{"hotelId":"H2"},{"hotelId":"H3"}]}`))
	}))
	mux.HandleFunc("/v3/shopping/hotel-offers", authed(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "H1,H2,H3", r.URL.Query().Get("hotelIds"))
		assert.Equal(t, "2026-05-01", r.URL.Query().Get("checkInDate"))
		assert.Equal(t, "2026-05-03", r.URL.Query().Get("checkOutDate"))
		w.Write([]byte(`{"data":[
			{"available":true,"hotel":{"hotelId":"H1","name":"HOTEL LUTETIA","latitude":48.85,"longitude":2.32},
			 "offers":[{"id":"O1","price":{"total":"360.00","currency":"EUR"},"room":{"description":{"text":"Deluxe king"}}}]},
			{"available":true,"hotel":{"hotelId":"H2","name":"LE MEURICE"},
			 "offers":[{"id":"O2","price":{"total":"1800.00","currency":"EUR"}}]},
			{"available":true,"hotel":{"hotelId":"H3","name":"GENERATOR PARIS"},
			 "offers":[{"id":"O3","price":{"total":"140.00","currency":"EUR"}}]},
			{"available":false,"hotel":{"hotelId":"H4","name":"SOLD OUT"}}
		]}`))
	}))
	return httptest.NewServer(mux)
}

func TestHotelsExecute(t *testing.T) {
	var tokens atomic.Int32
	server := amadeusServer(t, &tokens)
	defer server.Close()

	h := NewHotels(testClient(), server.URL, "id", "secret")
	args := json.RawMessage(`{"city":"Paris","check_in":"2026-05-01","check_out":"2026-05-03","max_price":200}`)

	res, err := h.Execute(context.Background(), args)
	require.NoError(t, err)
	require.True(t, res.Success)

	data := res.Data.(*types.HotelsResult)
	require.Len(t, data.Hotels, 2, "the 900/night offer exceeds max_price")
	assert.Equal(t, "Generator Paris", data.Hotels[0].Name, "cheapest first")
	assert.Equal(t, 70.0, data.Hotels[0].Price.Amount)

	lutetia := data.Hotels[1]
	assert.Equal(t, "Hotel Lutetia", lutetia.Name)
	assert.Equal(t, &types.Money{Amount: 180, Currency: "EUR"}, lutetia.Price)
	assert.Equal(t, &types.LatLng{Lat: 48.85, Lng: 2.32}, lutetia.Location)
	assert.Equal(t, "Deluxe king", lutetia.Description)
	assert.Len(t, res.Sources, 2)

	// The access token is cached between calls.
	_, err = h.Execute(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokens.Load())
}

func TestHotelsDefaultDates(t *testing.T) {
	p := hotelParams{City: "Paris"}
	require.NoError(t, p.Validate())
	nights, err := p.stay(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, nights)
	assert.Equal(t, "2026-03-15", p.CheckIn)
	assert.Equal(t, "2026-03-16", p.CheckOut)
	assert.Equal(t, 2, p.Adults)
}

func TestHotelsInvalidParams(t *testing.T) {
	h := NewHotels(testClient(), "http://127.0.0.1:1", "id", "secret")
	for _, raw := range []string{
		`{}`,
		`{"city":"Paris","check_in":"01/05/2026"}`,
		`{"city":"Paris","check_in":"2026-05-03","check_out":"2026-05-01"}`,
		`{"city":"Paris","adults":12}`,
	} {
		_, err := h.Execute(context.Background(), json.RawMessage(raw))
		assert.ErrorIs(t, err, runtime.ErrInvalidParameters, raw)
	}
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Hôtel Élysées Paris", titleCase("HÔTEL ÉLYSÉES  PARIS"))
}
