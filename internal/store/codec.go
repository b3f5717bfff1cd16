package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/relevar/relevar/internal/domain"
)

// Hash field names. Content and vector sit in their own fields so backends
// can fetch or patch them without touching the structured remainder.
const (
	fieldContent = "__content"
	fieldVector  = "__vector"
	fieldData    = "__data"
)

// itemData is the JSON payload holding everything outside the special fields.
type itemData struct {
	Metadata   map[string]string   `json:"metadata,omitempty"`
	Numerics   map[string]float64  `json:"numerics,omitempty"`
	Arrays     map[string][]string `json:"arrays,omitempty"`
	Nested     map[string]any      `json:"nested,omitempty"`
	Tags       []string            `json:"tags,omitempty"`
	Categories []string            `json:"categories,omitempty"`
	Inputs     []string            `json:"inputs,omitempty"`
	Scope      string              `json:"scope,omitempty"`
	Version    int64               `json:"version"`
	Degraded   bool                `json:"degraded,omitempty"`
}

// encodeFields converts an item into a flat field map for hash storage.
func encodeFields(it *domain.Item) (map[string]string, error) {
	data, err := json.Marshal(itemData{
		Metadata:   it.Metadata,
		Numerics:   it.Numerics,
		Arrays:     it.Arrays,
		Nested:     it.Nested,
		Tags:       it.Tags,
		Categories: it.Categories,
		Inputs:     it.Inputs,
		Scope:      it.TenantScope,
		Version:    it.Version,
		Degraded:   it.Degraded,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal item %s: %w", it.ID, err)
	}
	return map[string]string{
		fieldContent: it.Content,
		fieldVector:  vectorToBytes(it.Embedding),
		fieldData:    string(data),
	}, nil
}

// decodeFields converts a flat field map back into an item.
func decodeFields(id string, m map[string]string) (*domain.Item, error) {
	var data itemData
	if raw := m[fieldData]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, fmt.Errorf("unmarshal item %s: %w", id, err)
		}
	}
	return &domain.Item{
		ID:          id,
		Content:     m[fieldContent],
		Embedding:   bytesToVector(m[fieldVector]),
		Metadata:    data.Metadata,
		Numerics:    data.Numerics,
		Arrays:      data.Arrays,
		Nested:      data.Nested,
		Tags:        data.Tags,
		Categories:  data.Categories,
		Inputs:      data.Inputs,
		TenantScope: data.Scope,
		Version:     data.Version,
		Degraded:    data.Degraded,
	}, nil
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float,
// little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
