// Package entidb is the database façade: it binds the byte-store,
// codec, WAL, segment store, and transaction manager to a directory layout,
// and performs open-time recovery and on-demand compaction. One struct owns
// the whole storage stack behind an Open/Close lifecycle.
package entidb

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entidb/entidb/internal/bytestore"
	"github.com/entidb/entidb/internal/entidblog"
	"github.com/entidb/entidb/internal/manifest"
	"github.com/entidb/entidb/internal/metrics"
	"github.com/entidb/entidb/internal/segment"
	"github.com/entidb/entidb/internal/txn"
	"github.com/entidb/entidb/internal/wal"
)

// Transaction re-exports internal/txn's Transaction so callers never need
// to import the internal package directly.
type Transaction = txn.Transaction

// EntityID re-exports the 16-byte opaque entity identifier.
type EntityID = wal.EntityID

// DB is an open EntiDB database.
type DB struct {
	dir string
	cfg Config
	log *slog.Logger

	lock       *dirLock
	manifestMu sync.Mutex
	manifest   manifest.Manifest
	walBackend bytestore.ByteStore
	walMgr     *wal.Manager
	segments   *segment.Store
	txns       *txn.Manager
	metrics    *metrics.Metrics
	closed     atomic.Bool

	stopCheckpointer chan struct{}
	checkpointerDone chan struct{}
}

// Metrics returns the database's Prometheus metrics and the registry they
// are registered against, for callers that want to expose a /metrics
// endpoint or scrape programmatically.
func (db *DB) Metrics() *metrics.Metrics { return db.metrics }

// Open opens (and optionally creates) the database rooted at cfg.Dir,
// following the directory open protocol.
func Open(cfg Config) (*DB, error) {
	logger := entidblog.New(entidblog.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if cfg.CreateIfMissing {
		if err := os.MkdirAll(segmentsDir(cfg.Dir), 0o755); err != nil {
			return nil, fmt.Errorf("entidb: create directory %s: %w", cfg.Dir, err)
		}
	}

	lock, err := acquireDirLock(lockPath(cfg.Dir))
	if err != nil {
		return nil, err
	}
	db := &DB{dir: cfg.Dir, cfg: cfg, log: logger, lock: lock, metrics: metrics.New()}

	if err := db.openLocked(); err != nil {
		_ = lock.release()
		return nil, err
	}
	if cfg.CheckpointInterval > 0 {
		db.stopCheckpointer = make(chan struct{})
		db.checkpointerDone = make(chan struct{})
		go db.checkpointLoop()
	}
	return db, nil
}

// checkpointLoop periodically calls Checkpoint until Close. Failures are
// logged and the loop keeps running; the next tick retries.
func (db *DB) checkpointLoop() {
	defer close(db.checkpointerDone)
	ticker := time.NewTicker(db.cfg.CheckpointInterval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopCheckpointer:
			return
		case <-ticker.C:
			if err := db.Checkpoint(); err != nil {
				db.log.Error("background checkpoint failed", "err", err)
			}
		}
	}
}

func (db *DB) openLocked() error {
	m, _, err := manifest.Load(manifestPath(db.dir))
	if err != nil {
		return fmt.Errorf("entidb: load manifest: %w", err)
	}
	db.manifest = m

	walBackend, err := bytestore.OpenFileStore(walPath(db.dir))
	if err != nil {
		return fmt.Errorf("entidb: open wal: %w", err)
	}
	db.walBackend = walBackend
	db.walMgr = wal.Open(walBackend, wal.Options{SyncOnWrite: false, Logger: db.log, Metrics: db.metrics})

	ids, err := discoverSegmentIDs(db.dir)
	if err != nil {
		return err
	}
	seeds := make([]segment.SegmentSeed, 0, len(ids))
	for i, id := range ids {
		backend, err := bytestore.OpenFileStore(segmentPath(db.dir, id))
		if err != nil {
			return fmt.Errorf("entidb: open segment %d: %w", id, err)
		}
		seeds = append(seeds, segment.SegmentSeed{ID: id, Backend: backend, Sealed: i != len(ids)-1})
	}

	segStore, err := segment.Open(seeds, segment.Options{
		MaxSegmentSize: db.cfg.MaxSegmentSize,
		NewSegment:     db.createSegmentFile,
		OnSeal:         func(id uint64) { db.log.Info("segment sealed", "id", id) },
		Logger:         db.log,
		Metrics:        db.metrics,
	})
	if err != nil {
		return fmt.Errorf("entidb: open segment store: %w", err)
	}
	db.segments = segStore

	recovered, err := wal.Recover(walBackend, func(r wal.Record, seq wal.Sequence) error {
		kind := segment.KindPut
		if r.Type == wal.RecordDelete {
			kind = segment.KindDelete
		}
		_, _, err := db.segments.Append(segment.Record{
			Kind: kind, Collection: r.Collection, Entity: r.Entity, Sequence: seq, Payload: r.After,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWalCorruption, err)
	}
	if err := db.segments.RebuildIndex(); err != nil {
		return fmt.Errorf("%w: %w", ErrSegmentCorruption, err)
	}

	// A checkpoint truncates the WAL, so the WAL scan alone can understate
	// what was committed; the next sequence must exceed every sequence
	// observed in the WAL or the segments. Fold in the segment records' max
	// and the manifest's checkpointed sequence before seeding the counters.
	if segMax := db.segments.MaxSequence(); segMax > recovered.MaxSequence {
		recovered.MaxSequence = segMax
	}
	if ckpt := wal.Sequence(db.manifest.LastCheckpointSequence); ckpt > recovered.MaxSequence {
		recovered.MaxSequence = ckpt
	}

	db.txns = txn.New(db.walMgr, db.segments, recovered, txn.Options{SyncOnCommit: db.cfg.SyncOnCommit, Logger: db.log, Metrics: db.metrics})
	db.log.Info("database opened", "dir", db.dir, "next_txid", recovered.NextTxID(), "next_sequence", recovered.NextSequence())
	return nil
}

// createSegmentFile is the segment.Store's NewSegment factory: it creates
// the file at SEGMENTS/seg-NNNNNN.dat and fsyncs the SEGMENTS directory on
// Unix so the new file's existence survives a crash.
func (db *DB) createSegmentFile(id uint64) (bytestore.ByteStore, error) {
	backend, err := bytestore.OpenFileStore(segmentPath(db.dir, id))
	if err != nil {
		return nil, err
	}
	if err := fsyncDir(segmentsDir(db.dir)); err != nil {
		return nil, err
	}
	return backend, nil
}

// CollectionID maps name to its manifest collection-id, assigning a fresh
// dense id on first use and persisting the manifest.
func (db *DB) CollectionID(name string) (uint32, error) {
	db.manifestMu.Lock()
	defer db.manifestMu.Unlock()
	if db.closed.Load() {
		return 0, ErrDatabaseClosed
	}
	id := db.manifest.CollectionID(name)
	if err := manifest.Save(manifestPath(db.dir), db.dir, db.manifest); err != nil {
		return 0, fmt.Errorf("entidb: save manifest: %w", err)
	}
	return id, nil
}

// BeginRead starts a read-only transaction.
func (db *DB) BeginRead() (*Transaction, error) {
	if db.closed.Load() {
		return nil, ErrDatabaseClosed
	}
	return db.txns.BeginRead()
}

// BeginWrite starts a write transaction, blocking until the write mutex is
// available.
func (db *DB) BeginWrite() (*Transaction, error) {
	if db.closed.Load() {
		return nil, ErrDatabaseClosed
	}
	return db.txns.BeginWrite()
}

// SegmentIDs lists every open segment file's id (sealed and active),
// ascending. Mainly useful for stats and tests.
func (db *DB) SegmentIDs() []uint64 {
	return db.segments.IDs()
}

// Checkpoint runs the transaction manager's checkpoint protocol, then
// records the checkpointed sequence in the manifest.
func (db *DB) Checkpoint() error {
	if db.closed.Load() {
		return ErrDatabaseClosed
	}
	if err := db.txns.Checkpoint(); err != nil {
		return err
	}
	db.manifestMu.Lock()
	defer db.manifestMu.Unlock()
	db.manifest.LastCheckpointSequence = uint64(db.txns.CommittedSequence())
	if err := manifest.Save(manifestPath(db.dir), db.dir, db.manifest); err != nil {
		return fmt.Errorf("entidb: save manifest after checkpoint: %w", err)
	}
	return nil
}

// Close flushes the WAL and segments and releases the directory lock.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	if db.stopCheckpointer != nil {
		close(db.stopCheckpointer)
		<-db.checkpointerDone
	}
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(db.walMgr.Flush())
	record(db.segments.Flush())
	record(db.segments.Close())
	record(db.walBackend.Close())
	record(db.lock.release())
	return firstErr
}
