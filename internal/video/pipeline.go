// Package video runs the conditional video enrichment of a chat turn: query
// generation, provider search, relevance filtering, transcript analysis and,
// on the smart path, synthesis of one answer from several videos.
//
// Every step degrades instead of failing. The worst case is no videos.
package video

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/user/wayfarer/internal/metrics"
	"github.com/user/wayfarer/internal/types"
	"github.com/user/wayfarer/pkg/llm"
)

// Searcher finds videos for a query.
type Searcher interface {
	SearchVideos(ctx context.Context, query string, limit int) ([]types.Video, error)
}

// TranscriptSource returns the plain-text transcript of a video.
type TranscriptSource interface {
	Transcript(ctx context.Context, videoID string) (string, error)
}

// Request is the turn information the pipeline works from.
type Request struct {
	Question     string
	Destination  string
	TravelerType string
}

const (
	maxTopics         = 5
	perQueryResults   = 5
	smartAnalyzeCount = 3
	maxTranscript     = 12000
)

// SynthesisApology is the smart-path answer when synthesis fails.
const SynthesisApology = "I found some helpful videos about your question, but couldn't put together a full summary right now. Take a look at the videos below for first-hand tips."

// Pipeline wires the model and the video providers.
type Pipeline struct {
	model       llm.Provider
	search      Searcher
	transcripts TranscriptSource
}

// New creates a Pipeline. transcripts may be nil, in which case analysis
// works from titles and descriptions only.
func New(model llm.Provider, search Searcher, transcripts TranscriptSource) *Pipeline {
	return &Pipeline{model: model, search: search, transcripts: transcripts}
}

// FallbackQuery is used whenever query generation fails.
func FallbackQuery(destination string) string {
	return strings.TrimSpace(destination + " travel guide")
}

// GenerateQuery asks the model for one short search query.
func (p *Pipeline) GenerateQuery(ctx context.Context, req Request) string {
	out, err := llm.CompleteText(ctx, p.model, querySystemPrompt, describeRequest(req))
	if err != nil {
		slog.Warn("video query generation failed", "destination", req.Destination, "error", err)
		return FallbackQuery(req.Destination)
	}
	q := cleanQuery(out)
	if q == "" {
		return FallbackQuery(req.Destination)
	}
	return q
}

// GenerateTopics asks the model for one to five distinct search topics.
func (p *Pipeline) GenerateTopics(ctx context.Context, req Request) []string {
	fallback := []string{FallbackQuery(req.Destination)}

	out, err := llm.CompleteText(ctx, p.model, topicsSystemPrompt, describeRequest(req))
	if err != nil {
		slog.Warn("video topic generation failed", "destination", req.Destination, "error", err)
		return fallback
	}
	var raw []string
	if err := decodeJSON(out, &raw); err != nil {
		slog.Warn("video topics unparseable", "destination", req.Destination, "error", err)
		return fallback
	}
	topics := lo.Uniq(lo.FilterMap(raw, func(s string, _ int) (string, bool) {
		s = cleanQuery(s)
		return s, s != ""
	}))
	if len(topics) == 0 {
		return fallback
	}
	if len(topics) > maxTopics {
		topics = topics[:maxTopics]
	}
	return topics
}

// Search runs every query concurrently and merges the results in query
// order, dropping repeated video ids. A failed query contributes nothing.
func (p *Pipeline) Search(ctx context.Context, queries []string) []types.Video {
	results := make([][]types.Video, len(queries))
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			videos, err := p.search.SearchVideos(ctx, q, perQueryResults)
			if err != nil {
				slog.Warn("video search failed", "query", q, "error", err)
				return nil
			}
			results[i] = videos
			return nil
		})
	}
	_ = g.Wait()

	return lo.UniqBy(lo.Flatten(results), func(v types.Video) string { return v.ID })
}

// FilterByDestination keeps videos that mention the destination in their
// title or description. When none do, all candidates are kept and left to
// the relevance pass.
func FilterByDestination(videos []types.Video, destination string) []types.Video {
	dest := strings.ToLower(strings.TrimSpace(destination))
	if dest == "" {
		return videos
	}
	matched := lo.Filter(videos, func(v types.Video, _ int) bool {
		return strings.Contains(strings.ToLower(v.Title), dest) ||
			strings.Contains(strings.ToLower(v.Description), dest)
	})
	if len(matched) == 0 {
		return videos
	}
	return matched
}

// Rank asks the model which candidates answer the question, most relevant
// first. On failure the candidates are returned unchanged.
func (p *Pipeline) Rank(ctx context.Context, question string, videos []types.Video) []types.Video {
	if len(videos) <= 1 {
		return videos
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nVideos:\n", question)
	for i, v := range videos {
		fmt.Fprintf(&b, "%d. %s | %s | %s\n", i, v.Title, v.ChannelTitle, truncate(v.Description, 200))
	}

	out, err := llm.CompleteText(ctx, p.model, rankSystemPrompt, b.String())
	if err != nil {
		slog.Warn("video relevance pass failed", "error", err)
		return videos
	}
	var idx []int
	if err := decodeJSON(out, &idx); err != nil {
		slog.Warn("video relevance unparseable", "error", err)
		return videos
	}
	ranked := make([]types.Video, 0, len(idx))
	seen := map[int]bool{}
	for _, i := range idx {
		if i < 0 || i >= len(videos) || seen[i] {
			continue
		}
		seen[i] = true
		ranked = append(ranked, videos[i])
	}
	return ranked
}

// Analyze produces a summary, highlights and place mentions for one video.
// It never fails: on any error a generic summary marked Fallback is returned.
func (p *Pipeline) Analyze(ctx context.Context, v types.Video, req Request) *types.VideoAnalysis {
	source := v.Description
	if p.transcripts != nil {
		if t, err := p.transcripts.Transcript(ctx, v.ID); err != nil {
			slog.Debug("transcript unavailable", "video", v.ID, "error", err)
		} else if strings.TrimSpace(t) != "" {
			source = t
		}
	}

	user := fmt.Sprintf("Traveller question: %s\nDestination: %s\nVideo title: %s\nChannel: %s\n\nContent:\n%s",
		req.Question, req.Destination, v.Title, v.ChannelTitle, truncate(source, maxTranscript))
	out, err := llm.CompleteText(ctx, p.model, analyzeSystemPrompt, user)
	if err != nil {
		slog.Warn("video analysis failed", "video", v.ID, "error", err)
		return fallbackAnalysis(v, req)
	}

	var a struct {
		Summary    string   `json:"summary"`
		Highlights []string `json:"highlights"`
		Places     []string `json:"places"`
	}
	if err := decodeJSON(out, &a); err != nil || strings.TrimSpace(a.Summary) == "" {
		slog.Warn("video analysis unparseable", "video", v.ID, "error", err)
		return fallbackAnalysis(v, req)
	}
	return &types.VideoAnalysis{
		VideoID:    v.ID,
		Summary:    strings.TrimSpace(a.Summary),
		Highlights: lo.Compact(a.Highlights),
		Places:     lo.Uniq(lo.Compact(a.Places)),
	}
}

func fallbackAnalysis(v types.Video, req Request) *types.VideoAnalysis {
	subject := req.Destination
	if subject == "" {
		subject = "this trip"
	}
	by := ""
	if v.ChannelTitle != "" {
		by = " by " + v.ChannelTitle
	}
	return &types.VideoAnalysis{
		VideoID:    v.ID,
		Summary:    fmt.Sprintf("%q%s offers a first-hand look at %s. Watch it for sights, food and practical tips from someone who has been there.", v.Title, by, subject),
		Highlights: []string{},
		Places:     []string{},
		Fallback:   true,
	}
}

// Synthesize combines the analyzed videos into one short answer.
func (p *Pipeline) Synthesize(ctx context.Context, question string, videos []types.Video) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question)
	for i, v := range videos {
		if v.Analysis == nil {
			continue
		}
		fmt.Fprintf(&b, "\nVideo %d: %s (%s)\nSummary: %s\n", i+1, v.Title, v.ChannelTitle, v.Analysis.Summary)
		if len(v.Analysis.Highlights) > 0 {
			fmt.Fprintf(&b, "Highlights: %s\n", strings.Join(v.Analysis.Highlights, "; "))
		}
		if len(v.Analysis.Places) > 0 {
			fmt.Fprintf(&b, "Places: %s\n", strings.Join(v.Analysis.Places, ", "))
		}
	}
	out, err := llm.CompleteText(ctx, p.model, synthesisSystemPrompt, b.String())
	if err != nil {
		return "", fmt.Errorf("synthesize video answer: %w", err)
	}
	if out == "" {
		return "", fmt.Errorf("synthesize video answer: empty response")
	}
	return out, nil
}

// Smart runs the multi-topic path. It returns nil when no video survives;
// otherwise the top videos carry analyses and Response holds the synthesized
// answer, or SynthesisApology when synthesis failed.
func (p *Pipeline) Smart(ctx context.Context, req Request) *types.SmartVideoResult {
	topics := p.GenerateTopics(ctx, req)
	videos := p.Rank(ctx, req.Question, FilterByDestination(p.Search(ctx, topics), req.Destination))
	metrics.ObserveVideo("smart", len(videos))
	if len(videos) == 0 {
		return nil
	}
	if len(videos) > smartAnalyzeCount {
		videos = videos[:smartAnalyzeCount]
	}

	var g errgroup.Group
	for i := range videos {
		g.Go(func() error {
			videos[i].Analysis = p.Analyze(ctx, videos[i], req)
			return nil
		})
	}
	_ = g.Wait()

	res := &types.SmartVideoResult{Topics: topics, Videos: videos}
	answer, err := p.Synthesize(ctx, req.Question, videos)
	if err != nil {
		slog.Warn("video synthesis failed", "destination", req.Destination, "error", err)
		res.Response = SynthesisApology
		return res
	}
	res.Response = answer
	res.Synthesized = true
	return res
}

// Single runs the one-query path and returns filtered, ranked videos.
func (p *Pipeline) Single(ctx context.Context, req Request) []types.Video {
	q := p.GenerateQuery(ctx, req)
	videos := p.Rank(ctx, req.Question, FilterByDestination(p.Search(ctx, []string{q}), req.Destination))
	metrics.ObserveVideo("single", len(videos))
	return videos
}

func describeRequest(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", req.Question)
	if req.Destination != "" {
		fmt.Fprintf(&b, "Destination: %s\n", req.Destination)
	}
	if req.TravelerType != "" {
		fmt.Fprintf(&b, "Traveller type: %s\n", req.TravelerType)
	}
	return b.String()
}

func cleanQuery(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	s = strings.Trim(strings.TrimSpace(s), "\"'`")
	return truncate(strings.TrimSpace(s), 100)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
