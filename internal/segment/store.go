package segment

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/entidb/entidb/internal/bytestore"
	"github.com/entidb/entidb/internal/metrics"
)

// SnapshotLatest is passed to Get to see the most recently committed
// version of a key, bypassing the snapshot-sequence visibility check.
const SnapshotLatest = Sequence(math.MaxUint64)

// indexKey is the (collection, entity) lookup key for the in-memory index.
type indexKey struct {
	collection uint32
	entity     EntityID
}

// indexEntry is the in-memory index value: (segment_id, offset, sequence),
// plus whether it resolves to a tombstone.
type indexEntry struct {
	segmentID uint64
	offset    int64
	sequence  Sequence
	tombstone bool
}

// handle is one segment file's in-memory bookkeeping.
type handle struct {
	id      uint64
	backend bytestore.ByteStore
	sealed  bool
}

// SegmentSeed describes a pre-existing segment discovered by the façade's
// open protocol: the last id is active, all earlier ones sealed.
type SegmentSeed struct {
	ID      uint64
	Backend bytestore.ByteStore
	Sealed  bool
}

// Options configures a Store.
type Options struct {
	// MaxSegmentSize is the append-before-seal threshold.
	MaxSegmentSize int64
	// NewSegment creates a fresh backend for a brand new segment id. The
	// façade owns segment file naming and creation ("seg-NNNNNN.dat").
	NewSegment func(id uint64) (bytestore.ByteStore, error)
	// OnSeal is called synchronously right after a segment transitions from
	// active to sealed (flush+sync already performed).
	OnSeal func(id uint64)
	Logger *slog.Logger
	// Metrics is optional; when set, seal/compaction counts and the active
	// segment-count gauge are recorded.
	Metrics *metrics.Metrics
}

// Store is the segment store: one active, appendable segment plus any
// number of sealed, immutable segments, with an in-memory latest-version
// index.
type Store struct {
	mu   sync.RWMutex
	opts Options
	log  *slog.Logger

	handles  map[uint64]*handle
	order    []uint64 // sorted segment ids
	activeID uint64

	index map[indexKey]indexEntry
}

// Open builds a Store from already-open segment backends. seeds may come in
// any order; Open sorts them by id. The highest-id seed becomes active
// whatever its Sealed flag says; every other seed keeps its Sealed flag. If
// seeds is empty, a brand new active segment (id 1) is created via
// opts.NewSegment.
func Open(seeds []SegmentSeed, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		opts:    opts,
		log:     logger,
		handles: make(map[uint64]*handle),
		index:   make(map[indexKey]indexEntry),
	}

	if len(seeds) == 0 {
		backend, err := opts.NewSegment(1)
		if err != nil {
			return nil, fmt.Errorf("segment: create initial segment: %w", err)
		}
		s.handles[1] = &handle{id: 1, backend: backend, sealed: false}
		s.order = []uint64{1}
		s.activeID = 1
		s.reportSegmentCountLocked()
		return s, nil
	}

	for _, seed := range seeds {
		s.handles[seed.ID] = &handle{id: seed.ID, backend: seed.Backend, sealed: seed.Sealed}
		s.order = append(s.order, seed.ID)
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	last := s.order[len(s.order)-1]
	s.handles[last].sealed = false
	s.activeID = last

	if err := s.rebuildIndexLocked(); err != nil {
		return nil, err
	}
	s.reportSegmentCountLocked()
	return s, nil
}

// reportSegmentCountLocked updates the active-segment-count gauge, if
// metrics are configured. Caller holds s.mu (or is still inside Open,
// before s.mu is visible to other goroutines).
func (s *Store) reportSegmentCountLocked() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.ActiveSegments.Set(float64(len(s.order)))
	}
}

// Append writes r to the active segment, auto-sealing first if r would push
// the active segment past MaxSegmentSize (before, not after appending). It returns the segment id and offset the record landed at.
func (s *Store) Append(r Record) (uint64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, ok := s.handles[s.activeID]
	if !ok {
		return 0, 0, ErrNoActiveSegment
	}
	frame := encodeRecord(r)

	if s.opts.MaxSegmentSize > 0 && active.backend.Size() > 0 &&
		active.backend.Size()+int64(len(frame)) > s.opts.MaxSegmentSize {
		if err := s.sealActiveLocked(); err != nil {
			return 0, 0, err
		}
		active = s.handles[s.activeID]
	}

	offset, err := active.backend.Append(frame)
	if err != nil {
		return 0, 0, fmt.Errorf("segment: append: %w", err)
	}

	// Insertion keeps the entry with the largest sequence; recovery replay
	// may append records out of the live commit order.
	key := indexKey{collection: r.Collection, entity: r.Entity}
	if existing, ok := s.index[key]; !ok || r.Sequence >= existing.sequence {
		s.index[key] = indexEntry{segmentID: active.id, offset: offset, sequence: r.Sequence, tombstone: r.Kind == KindDelete}
	}

	return active.id, offset, nil
}

// sealActiveLocked flushes+syncs the active segment, marks it sealed, fires
// OnSeal, and opens a fresh active segment. Caller holds s.mu.
func (s *Store) sealActiveLocked() error {
	active := s.handles[s.activeID]
	if err := active.backend.Flush(); err != nil {
		return fmt.Errorf("segment: flush before seal: %w", err)
	}
	if err := active.backend.Sync(); err != nil {
		return fmt.Errorf("segment: sync before seal: %w", err)
	}
	active.sealed = true
	if s.opts.OnSeal != nil {
		s.opts.OnSeal(active.id)
	}

	newID := s.order[len(s.order)-1] + 1
	backend, err := s.opts.NewSegment(newID)
	if err != nil {
		return fmt.Errorf("segment: create rotated segment %d: %w", newID, err)
	}
	s.handles[newID] = &handle{id: newID, backend: backend, sealed: false}
	s.order = append(s.order, newID)
	s.activeID = newID
	if s.opts.Metrics != nil {
		s.opts.Metrics.SegmentSeals.Inc()
	}
	s.reportSegmentCountLocked()
	s.log.Info("segment sealed", "sealed_id", active.id, "new_active_id", newID)
	return nil
}

// Get resolves (collection, entity) at snapshotSeq: missing and tombstoned
// entries report found=false. The index only tracks the single latest
// version, so when its entry is newer than snapshotSeq an older version may
// still be visible to the snapshot; Get falls back to a segment scan for
// the newest version at or below snapshotSeq. Pass SnapshotLatest to see
// the most recent committed version.
func (s *Store) Get(collection uint32, entity EntityID, snapshotSeq Sequence) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.index[indexKey{collection: collection, entity: entity}]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if entry.sequence > snapshotSeq {
		return s.getAtSnapshot(collection, entity, snapshotSeq)
	}
	if entry.tombstone {
		return nil, false, nil
	}
	rec, err := s.ReadAt(entry.segmentID, entry.offset)
	if err != nil {
		return nil, false, err
	}
	return rec.Payload, true, nil
}

// getAtSnapshot is the slow path for readers pinned behind a later
// overwrite: scan every segment for the newest version of (collection,
// entity) whose sequence is at or below snapshotSeq.
func (s *Store) getAtSnapshot(collection uint32, entity EntityID, snapshotSeq Sequence) ([]byte, bool, error) {
	var best Record
	found := false
	err := s.ScanAll(func(_ uint64, _ int64, r Record) (bool, error) {
		if r.Collection == collection && r.Entity == entity && r.Sequence <= snapshotSeq {
			if !found || r.Sequence >= best.Sequence {
				best = r
				found = true
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found || best.Kind == KindDelete {
		return nil, false, nil
	}
	return best.Payload, true, nil
}

// IterCollection calls fn for every live (non-tombstone) entry in
// collection, visible at snapshotSeq.
func (s *Store) IterCollection(collection uint32, snapshotSeq Sequence, fn func(entity EntityID, payload []byte) error) error {
	s.mu.RLock()
	type hit struct {
		entity EntityID
		entry  indexEntry
	}
	var hits []hit
	for k, v := range s.index {
		if k.collection == collection {
			hits = append(hits, hit{entity: k.entity, entry: v})
		}
	}
	s.mu.RUnlock()

	for _, h := range hits {
		if h.entry.sequence > snapshotSeq {
			payload, found, err := s.getAtSnapshot(collection, h.entity, snapshotSeq)
			if err != nil {
				return err
			}
			if found {
				if err := fn(h.entity, payload); err != nil {
					return err
				}
			}
			continue
		}
		if h.entry.tombstone {
			continue
		}
		rec, err := s.ReadAt(h.entry.segmentID, h.entry.offset)
		if err != nil {
			return err
		}
		if err := fn(h.entity, rec.Payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadAt reads and decodes the record at offset in segment id.
func (s *Store) ReadAt(id uint64, offset int64) (Record, error) {
	s.mu.RLock()
	h, ok := s.handles[id]
	s.mu.RUnlock()
	if !ok {
		return Record{}, ErrUnknownSegment
	}
	var lenPrefix [4]byte
	raw, err := h.backend.ReadAt(offset, 4)
	if err != nil {
		return Record{}, fmt.Errorf("segment: read length prefix at %d:%d: %w", id, offset, err)
	}
	copy(lenPrefix[:], raw)
	total := frameLen(lenPrefix)
	frame, err := h.backend.ReadAt(offset, int(total))
	if err != nil {
		return Record{}, fmt.Errorf("segment: read record at %d:%d: %w", id, offset, err)
	}
	return decodeRecord(frame)
}

// ScanSegment walks every record in segment id from the start, stopping
// cleanly at a torn tail (possible only for the active segment after a
// crash) and invoking fn for each well-formed record.
func (s *Store) ScanSegment(id uint64, fn func(offset int64, r Record) (cont bool, err error)) error {
	s.mu.RLock()
	h, ok := s.handles[id]
	s.mu.RUnlock()
	if !ok {
		return ErrUnknownSegment
	}
	return scanBackend(h.backend, fn)
}

// scanBackend is the shared record-at-a-time scanner used by RebuildIndex
// and ScanSegment. A record_len prefix whose claimed frame runs past the
// available bytes is a tolerated torn tail (active segment, crash before
// fsync); anything else wrong is fatal corruption.
func scanBackend(backend bytestore.ByteStore, fn func(offset int64, r Record) (cont bool, err error)) error {
	pos := int64(0)
	size := backend.Size()
	for pos < size {
		if size-pos < 4 {
			return nil
		}
		raw, err := backend.ReadAt(pos, 4)
		if err != nil {
			return err
		}
		var lenPrefix [4]byte
		copy(lenPrefix[:], raw)
		total := frameLen(lenPrefix)
		if total > size-pos {
			return nil
		}
		frame, err := backend.ReadAt(pos, int(total))
		if err != nil {
			return err
		}
		rec, err := decodeRecord(frame)
		if err != nil {
			return err
		}
		cont, err := fn(pos, rec)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
		pos += total
	}
	return nil
}

// ScanAll walks every segment in ascending id order.
func (s *Store) ScanAll(fn func(id uint64, offset int64, r Record) (cont bool, err error)) error {
	s.mu.RLock()
	ids := append([]uint64(nil), s.order...)
	s.mu.RUnlock()
	for _, id := range ids {
		stop := false
		err := s.ScanSegment(id, func(offset int64, r Record) (bool, error) {
			cont, err := fn(id, offset, r)
			if !cont {
				stop = true
			}
			return cont, err
		})
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// RebuildIndex rescans every segment from scratch, keeping the
// largest-sequence entry per (collection, entity).
func (s *Store) RebuildIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildIndexLocked()
}

func (s *Store) rebuildIndexLocked() error {
	s.index = make(map[indexKey]indexEntry)
	for _, id := range s.order {
		h := s.handles[id]
		err := scanBackend(h.backend, func(offset int64, r Record) (bool, error) {
			key := indexKey{collection: r.Collection, entity: r.Entity}
			if existing, ok := s.index[key]; !ok || r.Sequence >= existing.sequence {
				s.index[key] = indexEntry{segmentID: id, offset: offset, sequence: r.Sequence, tombstone: r.Kind == KindDelete}
			}
			return true, nil
		})
		if err != nil {
			return fmt.Errorf("segment: rebuild index scanning segment %d: %w", id, err)
		}
	}
	return nil
}

// SealedIDs returns the ids of all currently sealed segments, ascending.
func (s *Store) SealedIDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uint64
	for _, id := range s.order {
		if s.handles[id].sealed {
			ids = append(ids, id)
		}
	}
	return ids
}

// MaxSequence returns the greatest commit sequence present in any segment
// record, or 0 when the store holds none. The in-memory index already keeps
// the largest sequence per key, so no rescan is needed.
func (s *Store) MaxSequence() Sequence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max Sequence
	for _, e := range s.index {
		if e.sequence > max {
			max = e.sequence
		}
	}
	return max
}

// IDs returns every open segment's id (sealed and active), ascending.
func (s *Store) IDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]uint64(nil), s.order...)
}

// ActiveID returns the current active segment's id.
func (s *Store) ActiveID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Flush flushes the active segment's buffered writes.
func (s *Store) Flush() error {
	s.mu.RLock()
	active := s.handles[s.activeID]
	s.mu.RUnlock()
	return active.backend.Flush()
}

// Sync durably syncs the active segment: stronger than Flush.
func (s *Store) Sync() error {
	s.mu.RLock()
	active := s.handles[s.activeID]
	s.mu.RUnlock()
	return active.backend.Sync()
}

// Close closes every segment backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, id := range s.order {
		if err := s.handles[id].backend.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
