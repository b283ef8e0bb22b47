package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"videomoments/config"
	"videomoments/core"
)

const upsertBatchSize = 100

// IndexStore owns one modality's records: the append-only text log
// (durable truth) plus the derived vector index. Writers are mutually
// exclusive; reads go straight to the backend and never block on a
// long ingestion beyond the batch in flight.
type IndexStore struct {
	mu       sync.Mutex
	log      *AppendLog
	index    VectorIndex
	embedder Embedder
	modality core.Modality
	fps      float64
}

func NewIndexStore(logPath string, index VectorIndex, embedder Embedder, modality core.Modality, fps float64) *IndexStore {
	return &IndexStore{
		log:      NewAppendLog(logPath),
		index:    index,
		embedder: embedder,
		modality: modality,
		fps:      fps,
	}
}

func (s *IndexStore) Modality() core.Modality { return s.modality }

func (s *IndexStore) SampleRateFPS() float64 { return s.fps }

// Upsert adds records to the store. In append-only mode records whose
// ID is already indexed with identical text are skipped without
// re-embedding, which makes re-ingestion of an unchanged source a
// cheap no-op. Re-ingestion with different text overwrites. In
// full-reload mode the store is cleared first.
//
// Records are committed in independent batches; an embedding failure
// aborts the current batch and the remainder but leaves previously
// committed batches intact.
func (s *IndexStore) Upsert(ctx context.Context, records []core.Record, appendOnly bool) (added, skipped int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r.ID == "" || r.Text == "" {
			return 0, 0, fmt.Errorf("record with empty id or text (id=%q)", r.ID)
		}
	}

	if !appendOnly {
		if err := s.index.Clear(ctx); err != nil {
			return 0, 0, fmt.Errorf("clear index: %w", err)
		}
		if err := s.log.Clear(); err != nil {
			return 0, 0, fmt.Errorf("clear log: %w", err)
		}
	}

	indexed, err := s.index.IDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list indexed ids: %w", err)
	}
	logged, _, err := s.log.Entries()
	if err != nil {
		return 0, 0, err
	}

	var pending []core.Record
	for _, r := range records {
		if _, ok := indexed[r.ID]; ok && logged[r.ID] == r.Text {
			skipped++
			continue
		}
		pending = append(pending, r)
	}

	for start := 0; start < len(pending); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		if err := s.commitBatch(ctx, batch, logged); err != nil {
			return added, skipped, fmt.Errorf("%s batch at record %d: %w", s.modality, start, err)
		}
		added += len(batch)
	}
	return added, skipped, nil
}

func (s *IndexStore) commitBatch(ctx context.Context, batch []core.Record, logged map[string]string) error {
	texts := make([]string, len(batch))
	for i, r := range batch {
		texts[i] = r.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if err := s.index.Upsert(ctx, batch, vectors); err != nil {
		return fmt.Errorf("index upsert: %w", err)
	}

	// Only ids the log does not already carry with this text get a new
	// line; replaying the index from the log is then loss-free.
	toLog := map[string]string{}
	var order []string
	for _, r := range batch {
		if prev, ok := logged[r.ID]; ok && prev == r.Text {
			continue
		}
		if _, ok := toLog[r.ID]; !ok {
			order = append(order, r.ID)
		}
		toLog[r.ID] = r.Text
		logged[r.ID] = r.Text
	}
	return s.log.Append(toLog, order)
}

// AllIds returns the set of committed record IDs.
func (s *IndexStore) AllIds(ctx context.Context) (map[string]struct{}, error) {
	return s.index.IDs(ctx)
}

func (s *IndexStore) Count(ctx context.Context) (int, error) {
	return s.index.Count(ctx)
}

// LoggedIDs returns the ids present in the durable log, regardless of
// index state. Ingestion uses this to avoid re-captioning.
func (s *IndexStore) LoggedIDs() (map[string]struct{}, error) {
	entries, _, err := s.log.Entries()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(entries))
	for id := range entries {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// LogStats returns total logged records and a per-source breakdown.
func (s *IndexStore) LogStats() (int, map[string]int, error) {
	entries, _, err := s.log.Entries()
	if err != nil {
		return 0, nil, err
	}
	perSource := map[string]int{}
	for id := range entries {
		perSource[core.SourceIDFromRecordID(id)]++
	}
	return len(entries), perSource, nil
}

// EnsureLoaded rebuilds an empty vector index from the backing log.
// Called at process start so the index is warm without an operator
// action; "index empty but log present" is an ordinary recovery path.
func (s *IndexStore) EnsureLoaded(ctx context.Context) error {
	count, err := s.index.Count(ctx)
	if err != nil {
		return fmt.Errorf("count index: %w", err)
	}
	if count > 0 || !s.log.Exists() {
		return nil
	}

	entries, order, err := s.log.Entries()
	if err != nil {
		return err
	}
	records := make([]core.Record, 0, len(order))
	for _, id := range order {
		records = append(records, core.NewRecord(id, entries[id], s.modality, s.fps))
	}
	log.Printf("Rebuilding %s index from %s (%d records)", s.modality, s.log.Path(), len(records))
	added, _, err := s.Upsert(ctx, records, true)
	if err != nil {
		return fmt.Errorf("rebuild %s index: %w", s.modality, err)
	}
	log.Printf("Loaded %d %s records", added, s.modality)
	return nil
}

// Query embeds the text and returns the raw candidate pool from the
// nearest-neighbor index, unfiltered.
func (s *IndexStore) Query(ctx context.Context, text string, topK int) ([]core.RawHit, error) {
	if topK <= 0 {
		topK = 50
	}
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.index.Search(ctx, vectors[0], topK)
}

// OpenStores builds the visual and audio stores with the backend
// selected by the STORE environment variable (memory, pgvector,
// milvus). A backend that fails to initialize degrades to the memory
// index with a warning rather than refusing to start.
func OpenStores(ctx context.Context, cfg *config.Config) (visual, audio *IndexStore) {
	embedder := pickEmbedder(cfg)
	visualIdx := openIndex(ctx, cfg, core.ModalityVisual, embedder.Dim())
	audioIdx := openIndex(ctx, cfg, core.ModalityAudio, embedder.Dim())

	visual = NewIndexStore(core.CaptionsLogPath(), visualIdx, embedder, core.ModalityVisual, cfg.SampleRateFPS)
	audio = NewIndexStore(core.TranscriptionsLogPath(), audioIdx, embedder, core.ModalityAudio, cfg.SampleRateFPS)
	return visual, audio
}

func pickEmbedder(cfg *config.Config) Embedder {
	if cfg.HasValidAPI() {
		return NewOpenAIEmbedder(cfg)
	}
	log.Printf("Warning: no API configured, using local term-frequency embedder")
	return NewLocalEmbedder()
}

func openIndex(ctx context.Context, cfg *config.Config, modality core.Modality, dim int) VectorIndex {
	kind := strings.ToLower(strings.TrimSpace(os.Getenv("STORE")))
	switch kind {
	case "pgvector":
		idx, err := NewPgVectorIndex(ctx, cfg.PostgresURL, modality, dim)
		if err != nil {
			log.Printf("Warning: failed to initialize pgvector index (%v), falling back to memory index", err)
			return NewMemoryVectorIndex()
		}
		return idx
	case "milvus":
		idx, err := NewMilvusVectorIndex(ctx, cfg.MilvusAddr, cfg.MilvusCollection, modality, dim)
		if err != nil {
			log.Printf("Warning: failed to initialize milvus index (%v), falling back to memory index", err)
			return NewMemoryVectorIndex()
		}
		return idx
	default:
		return NewMemoryVectorIndex()
	}
}
