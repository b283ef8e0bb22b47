package storage

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"videomoments/core"
)

// MilvusVectorIndex stores records in a Milvus collection with an HNSW
// cosine index. Both modalities share the collection; queries filter on
// the modality field.
type MilvusVectorIndex struct {
	mc       client.Client
	coll     string
	modality core.Modality
	dim      int
}

func NewMilvusVectorIndex(ctx context.Context, addr, coll string, modality core.Modality, dim int) (*MilvusVectorIndex, error) {
	mc, err := client.NewClient(ctx, client.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	idx := &MilvusVectorIndex{mc: mc, coll: coll, modality: modality, dim: dim}
	if err := idx.ensureSchemaAndIndex(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (m *MilvusVectorIndex) ensureSchemaAndIndex(ctx context.Context) error {
	has, err := m.mc.HasCollection(ctx, m.coll)
	if err != nil {
		return err
	}
	if !has {
		schema := entity.NewSchema()
		schema.WithField(entity.NewField().WithName("record_id").WithIsPrimaryKey(true).WithDataType(entity.FieldTypeVarChar).WithMaxLength(512))
		schema.WithField(entity.NewField().WithName("modality").WithDataType(entity.FieldTypeVarChar).WithMaxLength(16))
		schema.WithField(entity.NewField().WithName("source_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(255))
		schema.WithField(entity.NewField().WithName("ts").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(m.dim)))
		schema.WithName(m.coll)

		if err := m.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := m.mc.CreateIndex(ctx, m.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := m.mc.LoadCollection(ctx, m.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (m *MilvusVectorIndex) Upsert(ctx context.Context, records []core.Record, vectors [][]float32) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, 0, len(records))
	modalities := make([]string, 0, len(records))
	sources := make([]string, 0, len(records))
	timestamps := make([]float64, 0, len(records))
	texts := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
		modalities = append(modalities, string(r.Modality))
		sources = append(sources, r.SourceID)
		timestamps = append(timestamps, r.Timestamp)
		texts = append(texts, r.Text)
	}

	// Delete-then-insert makes re-ingestion of a changed record an
	// overwrite rather than a duplicate.
	if err := m.mc.DeleteByPks(ctx, m.coll, "", entity.NewColumnVarChar("record_id", ids)); err != nil {
		return fmt.Errorf("delete existing records: %w", err)
	}
	_, err := m.mc.Insert(ctx, m.coll, "",
		entity.NewColumnVarChar("record_id", ids),
		entity.NewColumnVarChar("modality", modalities),
		entity.NewColumnVarChar("source_id", sources),
		entity.NewColumnDouble("ts", timestamps),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("vector", m.dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("insert records: %w", err)
	}
	return nil
}

func (m *MilvusVectorIndex) Search(ctx context.Context, vector []float32, topK int) ([]core.RawHit, error) {
	sp, _ := entity.NewIndexHNSWSearchParam(74)
	filter := fmt.Sprintf("modality == %q", string(m.modality))
	res, err := m.mc.Search(ctx, m.coll, []string{}, filter,
		[]string{"record_id", "source_id", "ts", "text"},
		[]entity.Vector{entity.FloatVector(vector)},
		"vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}

	var hits []core.RawHit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			h := core.RawHit{Modality: m.modality, Score: float64(r.Scores[i])}
			if c, ok := cols["record_id"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					h.ID = data[i]
				}
			}
			if c, ok := cols["source_id"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					h.SourceID = data[i]
				}
			}
			if c, ok := cols["ts"].(*entity.ColumnDouble); ok {
				if data := c.Data(); i < len(data) {
					h.Timestamp = data[i]
				}
			}
			if c, ok := cols["text"].(*entity.ColumnVarChar); ok {
				if data := c.Data(); i < len(data) {
					h.Text = data[i]
				}
			}
			hits = append(hits, h)
		}
	}
	return hits, nil
}

func (m *MilvusVectorIndex) IDs(ctx context.Context) (map[string]struct{}, error) {
	filter := fmt.Sprintf("modality == %q", string(m.modality))
	res, err := m.mc.Query(ctx, m.coll, []string{}, filter, []string{"record_id"})
	if err != nil {
		return nil, fmt.Errorf("milvus query ids: %w", err)
	}
	ids := map[string]struct{}{}
	for _, col := range res {
		if c, ok := col.(*entity.ColumnVarChar); ok && c.Name() == "record_id" {
			for _, id := range c.Data() {
				ids[id] = struct{}{}
			}
		}
	}
	return ids, nil
}

func (m *MilvusVectorIndex) Count(ctx context.Context) (int, error) {
	ids, err := m.IDs(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (m *MilvusVectorIndex) Clear(ctx context.Context) error {
	filter := fmt.Sprintf("modality == %q", string(m.modality))
	if err := m.mc.Delete(ctx, m.coll, "", filter); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}
