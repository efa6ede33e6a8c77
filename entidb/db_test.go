package entidb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/entidb/entidb/internal/manifest"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	cfg.MaxSegmentSize = 1 << 20
	return cfg
}

func testEntity(b byte) EntityID {
	var e EntityID
	e[0] = b
	return e
}

func TestOpenCreatesDirectoryLayout(t *testing.T) {
	cfg := testConfig(t)
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	for _, name := range []string{lockFileName, segmentsDirName} {
		p := filepath.Join(cfg.Dir, name)
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
}

func TestWriteThenReadCommittedValue(t *testing.T) {
	cfg := testConfig(t)
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	id, err := db.CollectionID("widgets")
	if err != nil {
		t.Fatalf("CollectionID: %v", err)
	}

	wtx, err := db.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if err := wtx.Put(id, testEntity(1), []byte("widget-1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rtx, err := db.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	defer rtx.Close()
	payload, found, err := rtx.Get(id, testEntity(1))
	if err != nil || !found {
		t.Fatalf("expected committed value, found=%v err=%v", found, err)
	}
	if string(payload) != "widget-1" {
		t.Fatalf("got %q", payload)
	}
}

func TestReopenRecoversCommittedData(t *testing.T) {
	cfg := testConfig(t)
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := db.CollectionID("widgets")
	if err != nil {
		t.Fatalf("CollectionID: %v", err)
	}
	wtx, err := db.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if err := wtx.Put(id, testEntity(7), []byte("durable")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	rtx, err := reopened.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	defer rtx.Close()
	payload, found, err := rtx.Get(id, testEntity(7))
	if err != nil || !found {
		t.Fatalf("expected recovered value, found=%v err=%v", found, err)
	}
	if string(payload) != "durable" {
		t.Fatalf("got %q", payload)
	}
}

func TestReaderIsolatedFromLaterCommit(t *testing.T) {
	cfg := testConfig(t)
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	id, err := db.CollectionID("users")
	if err != nil {
		t.Fatalf("CollectionID: %v", err)
	}
	wtx, err := db.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if err := wtx.Put(id, testEntity(1), []byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	rtx, err := db.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	defer rtx.Close()

	wtx2, err := db.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite overwrite: %v", err)
	}
	if err := wtx2.Put(id, testEntity(1), []byte{0xFF}); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	if err := wtx2.Commit(); err != nil {
		t.Fatalf("Commit overwrite: %v", err)
	}

	payload, found, err := rtx.Get(id, testEntity(1))
	if err != nil || !found {
		t.Fatalf("pinned reader lost its snapshot, found=%v err=%v", found, err)
	}
	if len(payload) != 3 || payload[0] != 0x01 {
		t.Fatalf("pinned reader got %x, want the pre-overwrite bytes", payload)
	}

	rtx2, err := db.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead fresh: %v", err)
	}
	defer rtx2.Close()
	payload, found, err = rtx2.Get(id, testEntity(1))
	if err != nil || !found || len(payload) != 1 || payload[0] != 0xFF {
		t.Fatalf("fresh reader got %x found=%v err=%v, want ff", payload, found, err)
	}
}

func TestReopenToleratesTornWalTail(t *testing.T) {
	cfg := testConfig(t)
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := db.CollectionID("users")
	if err != nil {
		t.Fatalf("CollectionID: %v", err)
	}
	wtx, err := db.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if err := wtx.Put(id, testEntity(3), []byte{0xBB}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate a crash mid-append: fewer bytes than an envelope header.
	f, err := os.OpenFile(filepath.Join(cfg.Dir, walFileName), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open wal for append: %v", err)
	}
	if _, err := f.Write([]byte{0xDB, 0xED, 0x01}); err != nil {
		t.Fatalf("append torn tail: %v", err)
	}
	f.Close()

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen after torn tail must succeed: %v", err)
	}
	defer reopened.Close()
	rtx, err := reopened.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	defer rtx.Close()
	payload, found, err := rtx.Get(id, testEntity(3))
	if err != nil || !found || len(payload) != 1 || payload[0] != 0xBB {
		t.Fatalf("committed value lost after torn tail: %x found=%v err=%v", payload, found, err)
	}
}

func TestReopenFailsOnCorruptWal(t *testing.T) {
	cfg := testConfig(t)
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := db.CollectionID("users")
	if err != nil {
		t.Fatalf("CollectionID: %v", err)
	}
	wtx, err := db.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if err := wtx.Put(id, testEntity(3), []byte{0xBB}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Flip one bit inside the last complete record (its trailing CRC byte).
	path := filepath.Join(cfg.Dir, walFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wal: %v", err)
	}
	data[len(data)-1] ^= 0x02
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write corrupted wal: %v", err)
	}

	_, err = Open(cfg)
	if !errors.Is(err, ErrWalCorruption) {
		t.Fatalf("expected ErrWalCorruption on reopen, got %v", err)
	}
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected the checksum-mismatch cause to be matchable, got %v", err)
	}
}

func TestCheckpointPersistsSequenceInManifest(t *testing.T) {
	cfg := testConfig(t)
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	id, err := db.CollectionID("users")
	if err != nil {
		t.Fatalf("CollectionID: %v", err)
	}
	wtx, err := db.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if err := wtx.Put(id, testEntity(9), []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := db.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	m, found, err := manifest.Load(manifestPath(cfg.Dir))
	if err != nil || !found {
		t.Fatalf("manifest.Load: found=%v err=%v", found, err)
	}
	if m.LastCheckpointSequence == 0 {
		t.Fatal("expected a nonzero last_checkpoint_sequence after checkpoint")
	}
}

// TestReopenAfterCheckpointKeepsDataVisible guards the reopen path when the
// WAL has been truncated by a checkpoint: the committed-sequence watermark
// must be reseeded from the segments (and the manifest's checkpointed
// sequence), not just the now-empty WAL, or every reader's snapshot would
// be 0 and new commits would reuse old sequences.
func TestReopenAfterCheckpointKeepsDataVisible(t *testing.T) {
	cfg := testConfig(t)
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := db.CollectionID("users")
	if err != nil {
		t.Fatalf("CollectionID: %v", err)
	}
	wtx, err := db.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if err := wtx.Put(id, testEntity(5), []byte("survives-checkpoint")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := wtx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := db.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	rtx, err := reopened.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	payload, found, err := rtx.Get(id, testEntity(5))
	if err != nil || !found {
		t.Fatalf("checkpointed data lost on reopen, found=%v err=%v", found, err)
	}
	if string(payload) != "survives-checkpoint" {
		t.Fatalf("got %q", payload)
	}
	rtx.Close()

	// A fresh commit must land above the pre-checkpoint sequences and stay
	// visible alongside them.
	wtx2, err := reopened.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite after reopen: %v", err)
	}
	if err := wtx2.Put(id, testEntity(6), []byte("post-checkpoint")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := wtx2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	rtx2, err := reopened.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	defer rtx2.Close()
	if _, found, err := rtx2.Get(id, testEntity(5)); err != nil || !found {
		t.Fatalf("old entity hidden after new commit, found=%v err=%v", found, err)
	}
	if _, found, err := rtx2.Get(id, testEntity(6)); err != nil || !found {
		t.Fatalf("new entity not visible, found=%v err=%v", found, err)
	}
}

func TestSecondOpenIsLocked(t *testing.T) {
	cfg := testConfig(t)
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	_, err = Open(cfg)
	if err == nil {
		t.Fatal("expected second Open of the same directory to fail")
	}
}

func TestCompactRemovesSealedSegments(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxSegmentSize = 200 // force rotation quickly
	db, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	id, err := db.CollectionID("widgets")
	if err != nil {
		t.Fatalf("CollectionID: %v", err)
	}
	for i := 0; i < 20; i++ {
		wtx, err := db.BeginWrite()
		if err != nil {
			t.Fatalf("BeginWrite: %v", err)
		}
		if err := wtx.Put(id, testEntity(byte(i)), []byte("0123456789012345678901234567890")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := wtx.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}

	before := db.SegmentIDs()
	if len(before) < 2 {
		t.Fatalf("expected auto-seal to have produced >= 2 segments, got %v", before)
	}

	if err := db.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	// Every id but the last (the active segment) was sealed before compaction.
	after := db.SegmentIDs()
	for _, old := range before[:len(before)-1] {
		for _, id := range after {
			if id == old {
				t.Fatalf("sealed segment %d still open after compaction: %v", old, after)
			}
		}
		if _, err := os.Stat(segmentPath(cfg.Dir, old)); !os.IsNotExist(err) {
			t.Fatalf("sealed segment file %d should be deleted after compaction, stat err=%v", old, err)
		}
	}

	rtx, err := db.BeginRead()
	if err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	defer rtx.Close()
	for i := 0; i < 20; i++ {
		_, found, err := rtx.Get(id, testEntity(byte(i)))
		if err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
		if !found {
			t.Fatalf("entity %d should survive compaction", i)
		}
	}
}
