package memory

import (
	"encoding/json"
	"fmt"

	"github.com/xxxsen/docmem/internal/index"
	"github.com/xxxsen/docmem/internal/model"
)

const snapshotVersion = 1

type snapshot struct {
	Version   int                    `json:"version"`
	Dimension int                    `json:"dimension"`
	Chunks    []string               `json:"chunks"`
	Records   []model.DocumentRecord `json:"records"`
	Index     []byte                 `json:"index"`
}

func encodeSnapshot(chunks []string, records []model.DocumentRecord, idx *index.FlatL2) ([]byte, error) {
	raw, err := idx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal index: %w", err)
	}
	snap := snapshot{
		Version:   snapshotVersion,
		Dimension: idx.Dimension(),
		Chunks:    chunks,
		Records:   records,
		Index:     raw,
	}
	if snap.Chunks == nil {
		snap.Chunks = []string{}
	}
	if snap.Records == nil {
		snap.Records = []model.DocumentRecord{}
	}
	return json.Marshal(snap)
}

func decodeSnapshot(data []byte, dim int) ([]string, []model.DocumentRecord, *index.FlatL2, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, nil, nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, nil, nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Dimension != dim {
		return nil, nil, nil, fmt.Errorf("snapshot dimension %d, want %d", snap.Dimension, dim)
	}
	idx := index.NewFlatL2(dim)
	if err := idx.UnmarshalBinary(snap.Index); err != nil {
		return nil, nil, nil, fmt.Errorf("decode index: %w", err)
	}
	if idx.Dimension() != dim {
		return nil, nil, nil, fmt.Errorf("index dimension %d, want %d", idx.Dimension(), dim)
	}
	if len(snap.Chunks) != len(snap.Records) || len(snap.Chunks) != idx.Count() {
		return nil, nil, nil, fmt.Errorf("snapshot length mismatch: chunks=%d records=%d vectors=%d",
			len(snap.Chunks), len(snap.Records), idx.Count())
	}
	return snap.Chunks, snap.Records, idx, nil
}
