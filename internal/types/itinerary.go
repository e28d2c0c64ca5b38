package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

// ItineraryResponse is a day-by-day plan recovered from a model answer.
//
// The typed fields are a best-effort view for presentation. The JSON the
// model produced is kept as-is and is what MarshalJSON writes back, so keys
// outside the typed view and values of unexpected types survive storage and
// the event stream unchanged.
type ItineraryResponse struct {
	TripSummary TripSummary    `json:"tripSummary"`
	Days        []ItineraryDay `json:"days"`

	raw json.RawMessage
}

// itineraryFields has ItineraryResponse's typed fields without its methods.
type itineraryFields struct {
	TripSummary TripSummary    `json:"tripSummary"`
	Days        []ItineraryDay `json:"days"`
}

// UnmarshalJSON keeps data verbatim and fills the typed view. Values whose
// type does not match the view are left zero rather than failing the decode.
func (it *ItineraryResponse) UnmarshalJSON(data []byte) error {
	var view itineraryFields
	if err := json.Unmarshal(data, &view); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return err
		}
	}
	it.TripSummary = view.TripSummary
	it.Days = view.Days
	it.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

// MarshalJSON writes the original JSON when there is one, otherwise the
// typed view.
func (it ItineraryResponse) MarshalJSON() ([]byte, error) {
	if len(it.raw) > 0 {
		return it.raw, nil
	}
	return json.Marshal(itineraryFields{TripSummary: it.TripSummary, Days: it.Days})
}

type TripSummary struct {
	Title       string     `json:"title,omitempty"`
	Destination string     `json:"destination,omitempty"`
	Duration    FlexString `json:"duration,omitempty"`
	Overview    string     `json:"overview,omitempty"`
	TotalBudget FlexString `json:"totalBudget,omitempty"`
	Highlights  []string   `json:"highlights,omitempty"`
}

type ItineraryDay struct {
	Day        FlexString `json:"day"`
	Date       string     `json:"date,omitempty"`
	Title      string     `json:"title,omitempty"`
	Theme      string     `json:"theme,omitempty"`
	Activities []Activity `json:"activities"`
}

// Label returns "Day N" for numeric days, the model's own label otherwise,
// and "Day <fallback>" when the day is unset.
func (d ItineraryDay) Label(fallback int) string {
	switch {
	case d.Day == "":
		return "Day " + strconv.Itoa(fallback)
	case d.Day.IsNumber():
		return "Day " + string(d.Day)
	default:
		return string(d.Day)
	}
}

type Activity struct {
	Time        string     `json:"time,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Duration    FlexString `json:"duration,omitempty"`
	Cost        FlexString `json:"cost,omitempty"`
	Type        string     `json:"type,omitempty"`
	Tips        string     `json:"tips,omitempty"`
}

// FlexString accepts any JSON value. Strings keep their text, numbers their
// literal, and other values (booleans, objects, arrays) their compact JSON.
// Models are not consistent about quoting durations, costs and day numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return err
	}
	*f = FlexString(buf.String())
	return nil
}

// Float returns the numeric value, or false when the string is not a number.
func (f FlexString) Float() (float64, bool) {
	v, err := strconv.ParseFloat(string(f), 64)
	return v, err == nil
}

// IsNumber reports whether the value is a plain number.
func (f FlexString) IsNumber() bool {
	_, ok := f.Float()
	return ok
}
