// Package itinerary recovers the structured day-by-day plan that itinerary
// mode asks the model to embed in its answer.
package itinerary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/user/wayfarer/internal/types"
)

// fenced matches ```json ... ``` blocks. The tag is case-insensitive and the
// closing fence must start a line.
var fenced = regexp.MustCompile("(?is)```json[ \\t]*\\r?\\n(.*?)\\r?\\n[ \\t]*```")

var (
	errNoBlock      = errors.New("no json block")
	errManyBlocks   = errors.New("more than one json block")
	errNoSummary    = errors.New("tripSummary must be an object")
	errNoDays       = errors.New("days must be a non-empty array")
	errDayNotObject = errors.New("every day must be an object")
)

// Parse returns the itinerary embedded in text, or nil when there is none or
// it is malformed. Malformed blocks are logged, never returned as errors.
func Parse(text string) *types.ItineraryResponse {
	it, err := Extract(text)
	if err != nil {
		if !errors.Is(err, errNoBlock) {
			slog.Warn("discarding malformed itinerary block", "error", err)
		}
		return nil
	}
	return it
}

// Extract is Parse with the reason for rejection.
func Extract(text string) (*types.ItineraryResponse, error) {
	blocks := fenced.FindAllStringSubmatch(text, -1)
	if len(blocks) == 0 {
		return nil, errNoBlock
	}
	if len(blocks) > 1 {
		return nil, errManyBlocks
	}
	raw := []byte(blocks[0][1])

	var shape struct {
		TripSummary json.RawMessage   `json:"tripSummary"`
		Days        []json.RawMessage `json:"days"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("decode itinerary: %w", err)
	}
	if !isObject(shape.TripSummary) {
		return nil, errNoSummary
	}
	if len(shape.Days) == 0 {
		return nil, errNoDays
	}
	for _, d := range shape.Days {
		if !isObject(d) {
			return nil, errDayNotObject
		}
	}

	var it types.ItineraryResponse
	if err := json.Unmarshal(raw, &it); err != nil {
		return nil, fmt.Errorf("decode itinerary: %w", err)
	}
	return &it, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// Strip removes embedded json blocks from text, leaving the prose around them.
func Strip(text string) string {
	out := fenced.ReplaceAllString(text, "")
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}
