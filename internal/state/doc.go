// Package state provides filesystem-backed conversation storage: an
// append-only JSONL message log per conversation and a JSON conversation
// index.
//
// Layout under the data directory:
//
//	conversations/index.json
//	conversations/<id>/messages.jsonl
package state
