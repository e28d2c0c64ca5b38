package context

import (
	"bytes"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/user/wayfarer/internal/types"
)

// promptData feeds systemPrompt.
type promptData struct {
	Itinerary    bool
	Today        string
	Weekday      string
	Destination  string
	Title        string
	StartDate    string
	EndDate      string
	Days         int
	TravelerType string
	Party        string
	BudgetTier   string
	Budget       string
	Interests    string
}

var systemPrompt = template.Must(template.New("system").Parse(`You are Wayfarer, a well-travelled friend who happens to know every city's back streets. You are warm, specific and honest: you recommend real places by name, say when something is overrated, and never invent opening hours, prices or addresses you have not looked up.

## Tools

You can search places, hotels, events, weather, Reddit threads, the web and travel videos. Call them whenever fresh or local data would improve the answer. Several tools may be called at once. If a lookup fails, say so briefly and answer from what you know.
{{if .Itinerary}}
## Format: itinerary

The traveller wants a structured, day-by-day plan.

- Open with two or three sentences that set the tone of the trip.
- Then include exactly one fenced block tagged json containing the plan:

` + "```json" + `
{
  "tripSummary": {"title": "...", "destination": "...", "duration": "...", "overview": "...", "totalBudget": "...", "highlights": ["..."]},
  "days": [
    {"day": 1, "date": "YYYY-MM-DD", "title": "...", "theme": "...", "activities": [
      {"time": "09:00", "title": "...", "description": "...", "location": "...", "duration": "...", "cost": "...", "type": "sight|food|activity|transport|hotel", "tips": "..."}
    ]}
  ]
}
` + "```" + `

- Produce one day object per day of the trip{{if .Days}} ({{.Days}} days){{end}}.
- Keep the block valid JSON: double quotes, no comments, no trailing commas.
- After the block, add a short list of practical notes (transport, bookings, what to pack).
{{else}}
## Format: ask

The traveller is exploring. Keep answers short and scannable.

- Lead with a direct answer in one or two sentences.
- Recommend at most five places, each with a bolded name and one line on why it fits.
- Place results found by tools are shown to the traveller as cards, so do not repeat addresses or ratings at length.
- End with two or three follow-up questions the traveller might want to ask next.
{{end}}
## Trip context
{{if .Destination}}
- Destination: {{.Destination}}{{end}}{{if .Title}}
- Trip: {{.Title}}{{end}}{{if .StartDate}}
- Dates: {{.StartDate}}{{if .EndDate}} to {{.EndDate}}{{end}}{{end}}{{if .Days}}
- Length: {{.Days}} days{{end}}{{if .TravelerType}}
- Travelling as: {{.TravelerType}}{{if .Party}} ({{.Party}}){{end}}{{end}}{{if .BudgetTier}}
- Budget: {{.BudgetTier}}{{if .Budget}} ({{.Budget}}){{end}}{{end}}{{if .Interests}}
- Interests: {{.Interests}}{{end}}{{if not .Destination}}
- No destination chosen yet. Ask where they are headed if it matters for the answer.{{end}}

## Why it fits

Every place you recommend gets a short "why it fits" note tied to the trip context above: the traveller type, interests, budget or season. Skip the note only when there is no context to tie it to. Never claim a fit you cannot justify, and flag when a place clashes with the budget or the party (steep stairs with a pram, tasting menus on a shoestring).

## Dates

Today is {{.Weekday}}, {{.Today}}. Resolve relative dates such as "next week" or "this weekend" against today, never against your training data.
`))

// BuildSystemPrompt renders the system instructions for a turn. now is the
// only time input, so the output is deterministic for a given instant.
func BuildSystemPrompt(mode types.Mode, trip *types.TripContext, now time.Time) string {
	data := promptData{
		Itinerary: mode == types.ModeItinerary,
		Today:     now.Format("January 2, 2006"),
		Weekday:   now.Weekday().String(),
	}
	if trip != nil {
		data.Destination = trip.DestinationName()
		data.Title = trip.Title
		data.StartDate = trip.StartDate
		data.EndDate = trip.EndDate
		data.Days = trip.Days()
		data.TravelerType = trip.TravelerType()
		data.Party = describeParty(trip.Party)
		data.BudgetTier = trip.BudgetTier()
		data.Budget = describeBudget(trip.Budget)
		data.Interests = strings.Join(trip.Preferences, ", ")
	}

	var buf bytes.Buffer
	// Writes to a bytes.Buffer cannot fail and promptData has no methods.
	_ = systemPrompt.Execute(&buf, data)
	return buf.String()
}

func describeParty(p *types.Party) string {
	if p == nil || p.Adults+p.Children == 0 {
		return ""
	}
	var parts []string
	if p.Adults > 0 {
		parts = append(parts, plural(p.Adults, "adult"))
	}
	if p.Children > 0 {
		parts = append(parts, plural(p.Children, "child"))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, word string) string {
	switch {
	case n == 1:
		return "1 " + word
	case word == "child":
		return strconv.Itoa(n) + " children"
	default:
		return strconv.Itoa(n) + " " + word + "s"
	}
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func describeBudget(b *types.Budget) string {
	if b == nil || b.Max <= 0 {
		return ""
	}
	cur := b.Currency
	if cur == "" {
		cur = "USD"
	}
	if b.Min > 0 {
		return ftoa(b.Min) + "-" + ftoa(b.Max) + " " + cur
	}
	return "up to " + ftoa(b.Max) + " " + cur
}
