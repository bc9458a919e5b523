package memory

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"rentbot/internal/domain"
)

// Snapshot is the persisted form of an Index. Vectors and Metas are saved and
// loaded together so the positional alignment survives a round trip.
type Snapshot struct {
	Dimension int
	Vectors   [][]float32
	Metas     []domain.Metadata
}

// Snapshot returns a copy of the index contents.
func (s *Index) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Dimension: s.dimension,
		Vectors:   slicesClone(s.vectors),
		Metas:     append([]domain.Metadata(nil), s.metas...),
	}
}

// Restore replaces the index contents with a snapshot of matching dimensionality.
func (s *Index) Restore(snap Snapshot) error {
	if snap.Dimension != s.dimension {
		return fmt.Errorf("snapshot dimension %d, index expects %d: %w", snap.Dimension, s.dimension, domain.ErrDimensionMismatch)
	}
	if len(snap.Vectors) != len(snap.Metas) {
		return fmt.Errorf("corrupt snapshot: %d vectors, %d metadata records", len(snap.Vectors), len(snap.Metas))
	}
	for i, v := range snap.Vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("snapshot entry %d: %w", i, domain.ErrDimensionMismatch)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = slicesClone(snap.Vectors)
	s.metas = append([]domain.Metadata(nil), snap.Metas...)
	return nil
}

// Encode writes v as gob to w.
func Encode(w io.Writer, v any) error { return gob.NewEncoder(w).Encode(v) }

// Decode reads a gob value from r into v.
func Decode(r io.Reader, v any) error { return gob.NewDecoder(r).Decode(v) }

// WriteFile gob-encodes v into path via a temporary file and an atomic rename.
func WriteFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := Encode(f, v); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ReadFile decodes a gob file written by WriteFile into v.
func ReadFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Decode(f, v); err != nil {
		return fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	return nil
}

func slicesClone(vs [][]float32) [][]float32 {
	out := make([][]float32, len(vs))
	for i, v := range vs {
		out[i] = append([]float32(nil), v...)
	}
	return out
}
