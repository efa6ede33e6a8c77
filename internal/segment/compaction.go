package segment

import (
	"fmt"
	"sort"
)

// compareEntity orders entity ids byte-lexicographically, used only to make
// compaction's output deterministically sorted by (collection, entity) for
// a stable on-disk layout.
func compareEntity(a, b EntityID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Compact runs the compaction algorithm over every currently sealed
// segment and installs the result as a brand new sealed segment, per
// ReplaceSealedWithCompacted. currentSequence is the committed-sequence
// watermark the caller supplies; retention is tombstone_retention in
// sequence units, not wall-clock time.
//
// The active segment is never touched.
func (s *Store) Compact(currentSequence Sequence, retention uint64) (removedIDs []uint64, newID uint64, err error) {
	sealedIDs := s.SealedIDs()
	if len(sealedIDs) == 0 {
		return nil, 0, nil
	}

	latest := make(map[indexKey]Record)
	for _, id := range sealedIDs {
		err := s.ScanSegment(id, func(_ int64, r Record) (bool, error) {
			key := indexKey{collection: r.Collection, entity: r.Entity}
			if existing, ok := latest[key]; !ok || r.Sequence >= existing.Sequence {
				latest[key] = r
			}
			return true, nil
		})
		if err != nil {
			return nil, 0, fmt.Errorf("segment: compaction scan of segment %d: %w", id, err)
		}
	}

	records := make([]Record, 0, len(latest))
	for _, r := range latest {
		if r.Kind == KindDelete && uint64(currentSequence-r.Sequence) >= retention {
			continue
		}
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Collection != records[j].Collection {
			return records[i].Collection < records[j].Collection
		}
		return compareEntity(records[i].Entity, records[j].Entity) < 0
	})

	// Retire exactly the segments that were scanned. A segment sealed after
	// the scan above keeps its handle and its records; the index rebuild
	// below folds it back in.
	return s.replaceSealed(sealedIDs, records)
}

// ReplaceSealedWithCompacted writes compactedRecords into a brand new
// sealed segment (id = max_id+1), drops the in-memory handles for every
// currently sealed segment, and rebuilds the index. compactedRecords must
// cover every sealed segment's live state, so callers other than Compact
// must not run concurrently with a writer that could seal a new segment.
// Filesystem deletion of the superseded segment files is the façade's
// responsibility, performed after a directory fsync.
func (s *Store) ReplaceSealedWithCompacted(compactedRecords []Record) (removedIDs []uint64, newID uint64, err error) {
	return s.replaceSealed(s.SealedIDs(), compactedRecords)
}

func (s *Store) replaceSealed(sealedIDs []uint64, compactedRecords []Record) (removedIDs []uint64, newID uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removedIDs = sealedIDs
	if len(removedIDs) == 0 {
		return nil, 0, nil
	}

	newID = s.order[len(s.order)-1] + 1
	backend, err := s.opts.NewSegment(newID)
	if err != nil {
		return nil, 0, fmt.Errorf("segment: create compacted segment %d: %w", newID, err)
	}
	for _, r := range compactedRecords {
		if _, err := backend.Append(encodeRecord(r)); err != nil {
			return nil, 0, fmt.Errorf("segment: write compacted record: %w", err)
		}
	}
	if err := backend.Flush(); err != nil {
		return nil, 0, fmt.Errorf("segment: flush compacted segment: %w", err)
	}
	if err := backend.Sync(); err != nil {
		return nil, 0, fmt.Errorf("segment: sync compacted segment: %w", err)
	}

	removedSet := make(map[uint64]bool, len(removedIDs))
	for _, id := range removedIDs {
		removedSet[id] = true
		if h, ok := s.handles[id]; ok {
			if err := h.backend.Close(); err != nil {
				s.log.Warn("close retired segment", "id", id, "err", err)
			}
		}
		delete(s.handles, id)
	}
	newOrder := make([]uint64, 0, len(s.order)-len(removedIDs)+1)
	for _, id := range s.order {
		if !removedSet[id] {
			newOrder = append(newOrder, id)
		}
	}
	newOrder = append(newOrder, newID)
	sort.Slice(newOrder, func(i, j int) bool { return newOrder[i] < newOrder[j] })
	s.order = newOrder
	s.handles[newID] = &handle{id: newID, backend: backend, sealed: true}

	s.log.Info("segment compaction complete", "removed", removedIDs, "new_id", newID, "records", len(compactedRecords))

	if err := s.rebuildIndexLocked(); err != nil {
		return nil, 0, err
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.CompactionsTotal.Inc()
	}
	s.reportSegmentCountLocked()
	return removedIDs, newID, nil
}
