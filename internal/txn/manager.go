// Package txn implements EntiDB's transaction manager: a single-writer write
// lock, monotonic txn-id/sequence allocation, MVCC snapshot reads, and
// commit/checkpoint ordering. Writers are serialized by one process-wide
// mutex; readers never block and are never blocked, each pinned to the
// committed-sequence watermark observed at begin.
package txn

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/entidb/entidb/internal/metrics"
	"github.com/entidb/entidb/internal/segment"
	"github.com/entidb/entidb/internal/wal"
)

// Options configures a Manager.
type Options struct {
	// SyncOnCommit, when true, durably syncs the WAL after the COMMIT record
	// is appended (the strong-durability path); when false, only flushes.
	SyncOnCommit bool
	Logger       *slog.Logger
	// Metrics is optional; when set, commit/abort counts and commit latency
	// are recorded.
	Metrics *metrics.Metrics
}

// Manager is the transaction manager.
type Manager struct {
	walMgr   *wal.Manager
	segments *segment.Store
	opts     Options
	log      *slog.Logger

	nextTxID          atomic.Uint64
	nextSequence      atomic.Uint64
	committedSequence atomic.Uint64
	writeMu           sync.Mutex

	activeMu sync.Mutex
	active   map[wal.TxID]*Transaction
}

// New builds a Manager, seeding its counters from recovery.
func New(walMgr *wal.Manager, segments *segment.Store, recovered wal.RecoveredState, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		walMgr:   walMgr,
		segments: segments,
		opts:     opts,
		log:      logger,
		active:   make(map[wal.TxID]*Transaction),
	}
	m.nextTxID.Store(uint64(recovered.NextTxID()))
	m.nextSequence.Store(uint64(recovered.NextSequence()))
	m.committedSequence.Store(uint64(recovered.MaxSequence))
	return m
}

// CommittedSequence returns the current committed-sequence watermark.
func (m *Manager) CommittedSequence() wal.Sequence {
	return wal.Sequence(m.committedSequence.Load())
}

// BeginRead starts a read-only transaction. Read transactions never block
// on, or are blocked by, the writer.
func (m *Manager) BeginRead() (*Transaction, error) {
	return m.begin(false)
}

// BeginWrite acquires the process-wide write mutex and starts a write
// transaction. The mutex is released on Commit or Abort.
func (m *Manager) BeginWrite() (*Transaction, error) {
	m.writeMu.Lock()
	tx, err := m.begin(true)
	if err != nil {
		m.writeMu.Unlock()
		return nil, err
	}
	return tx, nil
}

func (m *Manager) begin(write bool) (*Transaction, error) {
	txid := wal.TxID(m.nextTxID.Add(1) - 1)
	snapshot := m.CommittedSequence()

	if _, err := m.walMgr.Append(wal.Begin(txid)); err != nil {
		return nil, fmt.Errorf("txn: begin append: %w", err)
	}

	tx := &Transaction{
		mgr:      m,
		id:       txid,
		snapshot: snapshot,
		write:    write,
		state:    StateActive,
		stage:    make(map[stageKey]stagedOp),
	}
	m.activeMu.Lock()
	m.active[txid] = tx
	m.activeMu.Unlock()
	m.log.Debug("txn begin", "txid", txid, "write", write, "snapshot", snapshot)
	return tx, nil
}

func (m *Manager) forget(txid wal.TxID) {
	m.activeMu.Lock()
	delete(m.active, txid)
	m.activeMu.Unlock()
}

// publishCommitted advances the committed-sequence watermark to at least seq.
func (m *Manager) publishCommitted(seq wal.Sequence) {
	for {
		cur := m.committedSequence.Load()
		if uint64(seq) <= cur {
			return
		}
		if m.committedSequence.CompareAndSwap(cur, uint64(seq)) {
			return
		}
	}
}

// Checkpoint is a durability barrier: sync segments, append
// CHECKPOINT(committed_sequence), flush the WAL, then truncate it to zero
// length. It takes the write mutex to avoid racing with an in-flight
// commit.
func (m *Manager) Checkpoint() error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.segments.Sync(); err != nil {
		return fmt.Errorf("txn: checkpoint sync segments: %w", err)
	}
	seq := m.CommittedSequence()
	if _, err := m.walMgr.Append(wal.Checkpoint(seq)); err != nil {
		return fmt.Errorf("txn: checkpoint append: %w", err)
	}
	if err := m.walMgr.Flush(); err != nil {
		return fmt.Errorf("txn: checkpoint flush wal: %w", err)
	}
	if err := m.walMgr.Clear(); err != nil {
		return fmt.Errorf("txn: checkpoint truncate wal: %w", err)
	}
	m.log.Info("checkpoint complete", "sequence", seq)
	return nil
}
