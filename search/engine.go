package search

import (
	"context"

	"videomoments/config"
	"videomoments/core"
	"videomoments/storage"
)

// Engine composes vector search, temporal clustering, intent window
// adjustment and multi-modal fusion over the two index stores.
type Engine struct {
	visual *storage.IndexStore
	audio  *storage.IndexStore

	pool        int
	threshold   float64
	visualGap   float64
	audioGap    float64
	topClusters int
	fps         float64
}

func (e *Engine) VisualStore() *storage.IndexStore { return e.visual }

func (e *Engine) AudioStore() *storage.IndexStore { return e.audio }

func NewEngine(visual, audio *storage.IndexStore, cfg *config.Config) *Engine {
	return &Engine{
		visual:      visual,
		audio:       audio,
		pool:        50,
		threshold:   cfg.SearchThreshold,
		visualGap:   cfg.VisualGap,
		audioGap:    cfg.AudioGap,
		topClusters: cfg.TopClusters,
		fps:         cfg.SampleRateFPS,
	}
}

// queryStore fetches the candidate pool and applies the score
// threshold. An empty index yields an empty hit set, not an error.
func (e *Engine) queryStore(ctx context.Context, store *storage.IndexStore, text string) ([]core.RawHit, error) {
	count, err := store.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	pool := e.pool
	if count < pool {
		pool = count
	}
	raw, err := store.Query(ctx, text, pool)
	if err != nil {
		return nil, err
	}
	hits := raw[:0]
	for _, h := range raw {
		if h.Score < e.threshold {
			continue
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// Search runs the visual pipeline: retrieve, threshold, cluster, rank.
func (e *Engine) Search(ctx context.Context, query string) ([]core.MomentSpan, error) {
	hits, err := e.queryStore(ctx, e.visual, query)
	if err != nil {
		return nil, err
	}
	spans := Cluster(hits, e.visualGap)
	if len(spans) > e.topClusters {
		spans = spans[:e.topClusters]
	}
	return spans, nil
}

// SearchWithIntent detects the temporal intent, searches with the
// cleaned query and attaches adjusted playback windows.
func (e *Engine) SearchWithIntent(ctx context.Context, query string) (string, []core.AdjustedMoment, error) {
	intent := DetectIntent(query)
	spans, err := e.Search(ctx, CleanQuery(query))
	if err != nil {
		return intent, nil, err
	}
	return intent, adjustAll(spans, intent), nil
}

// FusedSearch runs both modality pipelines and merges them. audioOnly
// gives the audio results first claim on shared (source, time) keys and
// a wider retained pool.
func (e *Engine) FusedSearch(ctx context.Context, query string, audioOnly bool) (string, []core.AdjustedMoment, error) {
	intent := DetectIntent(query)
	clean := CleanQuery(query)

	visualHits, err := e.queryStore(ctx, e.visual, clean)
	if err != nil {
		return intent, nil, err
	}
	audioHits, err := e.queryStore(ctx, e.audio, clean)
	if err != nil {
		return intent, nil, err
	}

	visualSpans := Cluster(visualHits, e.visualGap)
	audioSpans := Cluster(audioHits, e.audioGap)
	fused := Fuse(visualSpans, audioSpans, audioOnly, e.fps, e.topClusters)
	return intent, adjustAll(fused, intent), nil
}

func adjustAll(spans []core.MomentSpan, intent string) []core.AdjustedMoment {
	moments := make([]core.AdjustedMoment, 0, len(spans))
	for _, span := range spans {
		start, end := AdjustWindow(span, intent)
		moments = append(moments, core.AdjustedMoment{
			MomentSpan:    span,
			Intent:        intent,
			OriginalStart: span.Start,
			OriginalEnd:   span.End,
			AdjStart:      start,
			AdjEnd:        end,
		})
	}
	return moments
}
