package barrel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Span is a byte range within a posting file.
type Span struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// MarshalJSON encodes a Span as the two-element array the on-disk format
// uses ([offset, length]), not an object.
func (s Span) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{s.Offset, s.Length})
}

// UnmarshalJSON decodes the [offset, length] array form.
func (s *Span) UnmarshalJSON(b []byte) error {
	var pair [2]int64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	s.Offset, s.Length = pair[0], pair[1]
	return nil
}

// baseOffsets maps word_index -> single span, the base posting file's
// offsets.json shape.
type baseOffsets map[int]Span

// deltaOffsets maps word_index -> list of spans (one per append record),
// the delta posting file's delta_offsets.json shape.
type deltaOffsets map[int][]Span

func loadBaseOffsets(path string) (baseOffsets, error) {
	out := make(baseOffsets)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var wire map[string]Span
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range wire {
		var idx int
		if _, err := fmt.Sscanf(k, "%d", &idx); err != nil {
			return nil, fmt.Errorf("parse %s: bad word index key %q: %w", path, k, err)
		}
		out[idx] = v
	}
	return out, nil
}

func loadDeltaOffsets(path string) (deltaOffsets, error) {
	out := make(deltaOffsets)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var wire map[string][]Span
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range wire {
		var idx int
		if _, err := fmt.Sscanf(k, "%d", &idx); err != nil {
			return nil, fmt.Errorf("parse %s: bad word index key %q: %w", path, k, err)
		}
		out[idx] = v
	}
	return out, nil
}

// saveOffsets persists a word_index -> ... map as JSON using string keys,
// via an atomic rename so a reader never observes a half-written file.
func saveOffsets(path string, v interface{}) error {
	wire := make(map[string]interface{})
	switch m := v.(type) {
	case baseOffsets:
		for idx, span := range m {
			wire[fmt.Sprintf("%d", idx)] = span
		}
	case deltaOffsets:
		for idx, spans := range m {
			wire[fmt.Sprintf("%d", idx)] = spans
		}
	default:
		return fmt.Errorf("saveOffsets: unsupported type %T", v)
	}
	return atomicWriteJSON(path, wire)
}

func atomicWriteJSON(path string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return atomicWrite(path, b)
}

// atomicWrite writes b to a temp file in the same directory as path, then
// renames it over path, so a crash mid-write never leaves a torn file
// visible to readers.
func atomicWrite(path string, b []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}
