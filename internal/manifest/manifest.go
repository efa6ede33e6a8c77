// Package manifest implements EntiDB's MANIFEST file: the
// collection-name→id table, persisted index definitions, and the last
// checkpoint sequence, canonical-codec encoded and saved atomically using
// github.com/natefinch/atomic's write-temp-then-rename primitive, paired
// with a directory fsync for durability.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"runtime"

	"github.com/natefinch/atomic"

	"github.com/entidb/entidb/internal/codec"
)

// formatVersionMajor/Minor identify this manifest encoding. Stored as a
// two-element Array.
const (
	formatVersionMajor = 1
	formatVersionMinor = 0
)

// Manifest is the database's persistent metadata.
type Manifest struct {
	Collections            map[string]uint32
	Indexes                []codec.Value
	LastCheckpointSequence uint64
}

// Default returns an empty manifest for a freshly created database.
func Default() Manifest {
	return Manifest{Collections: make(map[string]uint32)}
}

// CollectionID returns name's collection-id, assigning a fresh dense id on
// first use. Ids are never reused.
func (m *Manifest) CollectionID(name string) uint32 {
	if id, ok := m.Collections[name]; ok {
		return id
	}
	var next uint32 = 1
	for _, id := range m.Collections {
		if id >= next {
			next = id + 1
		}
	}
	m.Collections[name] = next
	return next
}

// Encode renders m as canonical-codec bytes: format_version (Array of two
// Ints), collections (Map of Text→Int), indexes (Array of Map),
// last_checkpoint_sequence (Int).
func (m Manifest) Encode() ([]byte, error) {
	collectionEntries := make([]codec.MapEntry, 0, len(m.Collections))
	for name, id := range m.Collections {
		collectionEntries = append(collectionEntries, codec.MapEntry{
			Key:   codec.Text(name),
			Value: codec.Int(int64(id)),
		})
	}

	root := codec.Map([]codec.MapEntry{
		{Key: codec.Text("format_version"), Value: codec.Array([]codec.Value{
			codec.Int(formatVersionMajor), codec.Int(formatVersionMinor),
		})},
		{Key: codec.Text("collections"), Value: codec.Map(collectionEntries)},
		{Key: codec.Text("indexes"), Value: codec.Array(m.Indexes)},
		{Key: codec.Text("last_checkpoint_sequence"), Value: codec.Int(int64(m.LastCheckpointSequence))},
	})
	return codec.Encode(root)
}

// Decode parses manifest bytes produced by Encode.
func Decode(data []byte) (Manifest, error) {
	v, err := codec.DecodeExact(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: decode: %w", err)
	}
	if v.Kind != codec.KindMap {
		return Manifest{}, fmt.Errorf("manifest: root value is not a map")
	}

	fields := make(map[string]codec.Value, len(v.Map))
	for _, e := range v.Map {
		if e.Key.Kind == codec.KindText {
			fields[e.Key.Text] = e.Value
		}
	}

	m := Manifest{Collections: make(map[string]uint32)}

	if collections, ok := fields["collections"]; ok && collections.Kind == codec.KindMap {
		for _, e := range collections.Map {
			if e.Key.Kind != codec.KindText || e.Value.Kind != codec.KindInt {
				return Manifest{}, fmt.Errorf("manifest: malformed collections entry")
			}
			m.Collections[e.Key.Text] = uint32(e.Value.Int)
		}
	}
	if indexes, ok := fields["indexes"]; ok && indexes.Kind == codec.KindArray {
		m.Indexes = indexes.Array
	}
	if seq, ok := fields["last_checkpoint_sequence"]; ok && seq.Kind == codec.KindInt {
		m.LastCheckpointSequence = uint64(seq.Int)
	}
	return m, nil
}

// Load reads path, returning Default() and found=false if it does not
// exist, so Open can start from an empty manifest on a fresh database.
func Load(path string) (Manifest, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), false, nil
		}
		return Manifest{}, false, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	m, err := Decode(data)
	if err != nil {
		return Manifest{}, false, err
	}
	return m, true, nil
}

// Save writes m to path atomically (write-temp-then-rename), then fsyncs
// the containing directory on Unix. Windows has no equivalent call and
// relies on NTFS metadata journaling instead, so the directory fsync is a
// documented no-op there.
func Save(path, dir string, m Manifest) error {
	data, err := m.Encode()
	if err != nil {
		return fmt.Errorf("manifest: encode: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("manifest: atomic write %s: %w", path, err)
	}
	return fsyncDir(dir)
}

// fsyncDir durably persists dir's own metadata (file creation/rename
// visibility) on Unix. On Windows, os.Open+Sync on a directory handle is
// not a meaningful operation, so this is a no-op there.
func fsyncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("manifest: open dir %s for fsync: %w", dir, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("manifest: fsync dir %s: %w", dir, err)
	}
	return nil
}
