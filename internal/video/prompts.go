package video

import (
	"encoding/json"
	"fmt"
	"strings"
)

const querySystemPrompt = `You write YouTube search queries for travellers.
Reply with one search query of at most eight words that would find a helpful, recent travel video answering the question. Include the destination. Reply with the query only: no quotes, no explanation.`

const topicsSystemPrompt = `You plan YouTube searches for travellers.
Split the question into between one and five distinct search queries, each at most eight words and each including the destination. Use fewer queries for narrow questions.
Reply with a JSON array of strings only, for example ["Lisbon food tour", "Lisbon tram 28 tips"].`

const rankSystemPrompt = `You judge whether travel videos answer a traveller's question.
Given the question and a numbered list of videos, reply with a JSON array of the numbers of the videos that are relevant, most relevant first, for example [2, 0]. Leave out videos about a different place or topic. Reply with [] if none are relevant.`

const analyzeSystemPrompt = `You summarise travel videos for a traveller.
From the video content, reply with a JSON object only:
{"summary": "two or three sentences on what the video shows and who it suits", "highlights": ["up to five concrete tips or moments"], "places": ["named places, restaurants or sights mentioned"]}
Only include places actually named in the content.`

const synthesisSystemPrompt = `You answer a traveller's question using summaries of travel videos.
Write at most 250 words in markdown using exactly this structure:

**Quick answer:** one or two sentences.

**Recommendations**
- three to five bullets, each naming a specific place or experience from the videos

**Tips**
- two or three practical bullets

**Pro tip:** one sentence.

Use only what the summaries support. Do not mention that you are summarising videos.`

// decodeJSON unmarshals the first JSON value in a model reply, tolerating
// surrounding prose and markdown fences.
func decodeJSON(text string, v any) error {
	text = strings.TrimSpace(text)
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return fmt.Errorf("no JSON in reply %q", truncate(text, 80))
	}
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
