package segment

import (
	"testing"

	"github.com/entidb/entidb/internal/bytestore"
)

func memFactory() (map[uint64]bytestore.ByteStore, func(id uint64) (bytestore.ByteStore, error)) {
	backing := make(map[uint64]bytestore.ByteStore)
	return backing, func(id uint64) (bytestore.ByteStore, error) {
		b := bytestore.NewMemStore()
		backing[id] = b
		return b, nil
	}
}

func testEntity(b byte) EntityID {
	var e EntityID
	e[0] = b
	return e
}

func TestAppendAndGet(t *testing.T) {
	_, factory := memFactory()
	s, err := Open(nil, Options{MaxSegmentSize: 1 << 20, NewSegment: factory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	r := Record{Kind: KindPut, Collection: 1, Entity: testEntity(1), Sequence: 10, Payload: []byte("hello")}
	if _, _, err := s.Append(r); err != nil {
		t.Fatalf("Append: %v", err)
	}

	payload, found, err := s.Get(1, testEntity(1), SnapshotLatest)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if string(payload) != "hello" {
		t.Fatalf("got payload %q", payload)
	}
}

func TestGetRespectsSnapshotSequence(t *testing.T) {
	_, factory := memFactory()
	s, err := Open(nil, Options{MaxSegmentSize: 1 << 20, NewSegment: factory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := s.Append(Record{Kind: KindPut, Collection: 1, Entity: testEntity(1), Sequence: 50, Payload: []byte("v")}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, found, err := s.Get(1, testEntity(1), Sequence(49)); err != nil || found {
		t.Fatalf("expected not found at snapshot before the write, found=%v err=%v", found, err)
	}
	if _, found, err := s.Get(1, testEntity(1), Sequence(50)); err != nil || !found {
		t.Fatalf("expected found at snapshot == write sequence, found=%v err=%v", found, err)
	}
}

func TestGetFallsBackToOlderVersionAtSnapshot(t *testing.T) {
	_, factory := memFactory()
	s, err := Open(nil, Options{MaxSegmentSize: 1 << 20, NewSegment: factory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := s.Append(Record{Kind: KindPut, Collection: 1, Entity: testEntity(1), Sequence: 10, Payload: []byte("v1")}); err != nil {
		t.Fatalf("Append v1: %v", err)
	}
	if _, _, err := s.Append(Record{Kind: KindPut, Collection: 1, Entity: testEntity(1), Sequence: 20, Payload: []byte("v2")}); err != nil {
		t.Fatalf("Append v2: %v", err)
	}

	payload, found, err := s.Get(1, testEntity(1), Sequence(15))
	if err != nil || !found {
		t.Fatalf("expected v1 visible at snapshot 15, found=%v err=%v", found, err)
	}
	if string(payload) != "v1" {
		t.Fatalf("snapshot 15 got %q, want v1", payload)
	}
	payload, found, err = s.Get(1, testEntity(1), Sequence(20))
	if err != nil || !found {
		t.Fatalf("expected v2 visible at snapshot 20, found=%v err=%v", found, err)
	}
	if string(payload) != "v2" {
		t.Fatalf("snapshot 20 got %q, want v2", payload)
	}
	if _, found, err := s.Get(1, testEntity(1), Sequence(5)); err != nil || found {
		t.Fatalf("expected nothing visible at snapshot 5, found=%v err=%v", found, err)
	}
}

func TestGetFallbackSeesTombstoneAtSnapshot(t *testing.T) {
	_, factory := memFactory()
	s, err := Open(nil, Options{MaxSegmentSize: 1 << 20, NewSegment: factory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := s.Append(Record{Kind: KindPut, Collection: 1, Entity: testEntity(1), Sequence: 10, Payload: []byte("v1")}); err != nil {
		t.Fatalf("Append put: %v", err)
	}
	if _, _, err := s.Append(Record{Kind: KindDelete, Collection: 1, Entity: testEntity(1), Sequence: 20}); err != nil {
		t.Fatalf("Append delete: %v", err)
	}
	if _, _, err := s.Append(Record{Kind: KindPut, Collection: 1, Entity: testEntity(1), Sequence: 30, Payload: []byte("v3")}); err != nil {
		t.Fatalf("Append resurrect: %v", err)
	}

	if _, found, err := s.Get(1, testEntity(1), Sequence(25)); err != nil || found {
		t.Fatalf("tombstone at 20 must hide the entity at snapshot 25, found=%v err=%v", found, err)
	}
}

func TestTombstoneHidesEntity(t *testing.T) {
	_, factory := memFactory()
	s, err := Open(nil, Options{MaxSegmentSize: 1 << 20, NewSegment: factory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := s.Append(Record{Kind: KindPut, Collection: 1, Entity: testEntity(1), Sequence: 1, Payload: []byte("v")}); err != nil {
		t.Fatalf("Append put: %v", err)
	}
	if _, _, err := s.Append(Record{Kind: KindDelete, Collection: 1, Entity: testEntity(1), Sequence: 2}); err != nil {
		t.Fatalf("Append delete: %v", err)
	}
	if _, found, err := s.Get(1, testEntity(1), SnapshotLatest); err != nil || found {
		t.Fatalf("expected tombstoned entity to be absent, found=%v err=%v", found, err)
	}
}

// TestAutoSealBeforeExceedingBound checks that writes whose cumulative
// bytes exceed max_segment_size produce >=2 segments, all earlier ones
// sealed, and every record remains readable.
func TestAutoSealBeforeExceedingBound(t *testing.T) {
	_, factory := memFactory()
	s, err := Open(nil, Options{MaxSegmentSize: 100, NewSegment: factory}) // small bound forces rotation
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	const n = 10
	for i := 0; i < n; i++ {
		r := Record{Kind: KindPut, Collection: 1, Entity: testEntity(byte(i)), Sequence: Sequence(i + 1), Payload: []byte("0123456789012345678901234567890")}
		if _, _, err := s.Append(r); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	if len(s.SealedIDs()) == 0 {
		t.Fatal("expected at least one sealed segment after exceeding max_segment_size repeatedly")
	}

	for i := 0; i < n; i++ {
		_, found, err := s.Get(1, testEntity(byte(i)), SnapshotLatest)
		if err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
		if !found {
			t.Fatalf("entity %d should remain readable after rotation", i)
		}
	}
}

// TestCompactionKeepsLatestAndDropsOldTombstones checks compaction's
// version-merging and tombstone-retention behavior.
func TestCompactionKeepsLatestAndDropsOldTombstones(t *testing.T) {
	_, factory := memFactory()
	s, err := Open(nil, Options{MaxSegmentSize: 40, NewSegment: factory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	mustAppend := func(r Record) {
		t.Helper()
		if _, _, err := s.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	// Entity 1: two versions, keep the later one.
	mustAppend(Record{Kind: KindPut, Collection: 1, Entity: testEntity(1), Sequence: 1, Payload: []byte("old-value-padded")})
	mustAppend(Record{Kind: KindPut, Collection: 1, Entity: testEntity(1), Sequence: 2, Payload: []byte("new-value-padded")})
	// Entity 2: an old tombstone, beyond retention.
	mustAppend(Record{Kind: KindDelete, Collection: 1, Entity: testEntity(2), Sequence: 3})
	// Entity 3: a recent tombstone, within retention.
	mustAppend(Record{Kind: KindDelete, Collection: 1, Entity: testEntity(3), Sequence: 9})
	// force a seal so there's at least one sealed segment to compact
	mustAppend(Record{Kind: KindPut, Collection: 1, Entity: testEntity(4), Sequence: 10, Payload: []byte("padding-to-force-a-seal-boundary")})

	sealedBefore := s.SealedIDs()
	if len(sealedBefore) == 0 {
		t.Skip("no sealed segments produced with this size bound; nothing to compact")
	}

	removed, newID, err := s.Compact(Sequence(10), 5)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if newID == 0 {
		t.Fatal("expected a new compacted segment id")
	}
	if len(removed) != len(sealedBefore) {
		t.Fatalf("expected all %d sealed segments removed, got %d", len(sealedBefore), len(removed))
	}

	payload, found, err := s.Get(1, testEntity(1), SnapshotLatest)
	if err != nil || !found || string(payload) != "new-value-padded" {
		t.Fatalf("expected latest version to survive compaction, got payload=%q found=%v err=%v", payload, found, err)
	}

	if _, found, _ := s.Get(1, testEntity(3), SnapshotLatest); found {
		t.Fatal("recent tombstone should still hide the entity")
	}
}

// TestTombstoneRetentionBoundary pins the drop condition: a tombstone at
// sequence T survives compaction iff current_sequence - T < retention.
func TestTombstoneRetentionBoundary(t *testing.T) {
	_, factory := memFactory()
	s, err := Open(nil, Options{MaxSegmentSize: 1, NewSegment: factory}) // every append after the first rotates
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// current=10, retention=5: seq 5 is exactly at the boundary (delta 5,
	// dropped); seq 6 is inside retention (delta 4, kept).
	if _, _, err := s.Append(Record{Kind: KindDelete, Collection: 1, Entity: testEntity(1), Sequence: 5}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, _, err := s.Append(Record{Kind: KindDelete, Collection: 1, Entity: testEntity(2), Sequence: 6}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, _, err := s.Append(Record{Kind: KindPut, Collection: 1, Entity: testEntity(3), Sequence: 10, Payload: []byte("x")}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, _, err := s.Compact(Sequence(10), 5); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	var kinds []Record
	err = s.ScanAll(func(_ uint64, _ int64, r Record) (bool, error) {
		if r.Kind == KindDelete {
			kinds = append(kinds, r)
		}
		return true, nil
	})
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if len(kinds) != 1 || kinds[0].Sequence != 6 {
		t.Fatalf("expected only the delta-4 tombstone to survive, got %+v", kinds)
	}
}

func TestRebuildIndexAfterReopen(t *testing.T) {
	backing, factory := memFactory()
	s, err := Open(nil, Options{MaxSegmentSize: 1 << 20, NewSegment: factory})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := s.Append(Record{Kind: KindPut, Collection: 1, Entity: testEntity(1), Sequence: 1, Payload: []byte("v")}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	seeds := []SegmentSeed{{ID: 1, Backend: backing[1], Sealed: false}}
	reopened, err := Open(seeds, Options{MaxSegmentSize: 1 << 20, NewSegment: factory})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, found, err := reopened.Get(1, testEntity(1), SnapshotLatest); err != nil || !found {
		t.Fatalf("expected index rebuilt from existing segment, found=%v err=%v", found, err)
	}
}
