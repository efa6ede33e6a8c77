package txn

import (
	"fmt"
	"sync"
	"time"

	"github.com/entidb/entidb/internal/segment"
	"github.com/entidb/entidb/internal/wal"
)

// Transaction is a single begin..commit/abort span. Put/Delete stage local
// changes; Get consults the stage first, then the segment store's index at
// the transaction's snapshot sequence.
type Transaction struct {
	mgr      *Manager
	id       wal.TxID
	snapshot wal.Sequence
	write    bool

	mu    sync.Mutex
	state State
	stage map[stageKey]stagedOp

	releaseOnce sync.Once
}

// ID returns the transaction's txid.
func (t *Transaction) ID() wal.TxID { return t.id }

// Snapshot returns the commit-sequence watermark this transaction sees.
func (t *Transaction) Snapshot() wal.Sequence { return t.snapshot }

// State returns the transaction's current lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Put stages a write of payload to (collection, entity). Only valid on a
// write transaction.
func (t *Transaction) Put(collection uint32, entity wal.EntityID, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.write {
		return fmt.Errorf("%w: Put on a read-only transaction", ErrInvalidOperation)
	}
	if t.state != StateActive {
		return fmt.Errorf("%w: transaction is %s", ErrInvalidOperation, t.state)
	}
	t.stage[stageKey{collection: collection, entity: entity}] = stagedOp{kind: segment.KindPut, payload: payload}
	return nil
}

// Delete stages a tombstone for (collection, entity). Only valid on a write
// transaction.
func (t *Transaction) Delete(collection uint32, entity wal.EntityID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.write {
		return fmt.Errorf("%w: Delete on a read-only transaction", ErrInvalidOperation)
	}
	if t.state != StateActive {
		return fmt.Errorf("%w: transaction is %s", ErrInvalidOperation, t.state)
	}
	t.stage[stageKey{collection: collection, entity: entity}] = stagedOp{kind: segment.KindDelete}
	return nil
}

// Get reads (collection, entity): the staged map first, then the segment
// store at this transaction's snapshot sequence.
func (t *Transaction) Get(collection uint32, entity wal.EntityID) ([]byte, bool, error) {
	t.mu.Lock()
	op, staged := t.stage[stageKey{collection: collection, entity: entity}]
	snapshot := t.snapshot
	t.mu.Unlock()

	if staged {
		if op.kind == segment.KindDelete {
			return nil, false, nil
		}
		return op.payload, true, nil
	}
	return t.mgr.segments.Get(collection, entity, snapshot)
}

// IterCollection calls fn for every live entity visible to this transaction
// in collection: staged writes overlay the segment store's view at the
// transaction's snapshot, so a staged PUT is included and a staged DELETE
// hides the stored version.
func (t *Transaction) IterCollection(collection uint32, fn func(entity wal.EntityID, payload []byte) error) error {
	t.mu.Lock()
	staged := make(map[wal.EntityID]stagedOp)
	for k, op := range t.stage {
		if k.collection == collection {
			staged[k.entity] = op
		}
	}
	snapshot := t.snapshot
	t.mu.Unlock()

	for entity, op := range staged {
		if op.kind == segment.KindDelete {
			continue
		}
		if err := fn(entity, op.payload); err != nil {
			return err
		}
	}
	return t.mgr.segments.IterCollection(collection, snapshot, func(entity wal.EntityID, payload []byte) error {
		if _, ok := staged[entity]; ok {
			return nil
		}
		return fn(entity, payload)
	})
}

// Commit executes the two-phase WAL-then-segment commit protocol. Only
// valid on a write transaction.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	if !t.write {
		t.mu.Unlock()
		return fmt.Errorf("%w: Commit on a read-only transaction", ErrInvalidOperation)
	}
	if t.state != StateActive {
		t.mu.Unlock()
		return fmt.Errorf("%w: transaction is %s", ErrInvalidOperation, t.state)
	}
	ops := make(map[stageKey]stagedOp, len(t.stage))
	for k, v := range t.stage {
		ops[k] = v
	}
	t.mu.Unlock()

	start := time.Now()
	seq := wal.Sequence(t.mgr.nextSequence.Add(1) - 1)

	for k, op := range ops {
		var rec wal.Record
		if op.kind == segment.KindPut {
			rec = wal.Put(t.id, k.collection, k.entity, op.payload)
		} else {
			rec = wal.Delete(t.id, k.collection, k.entity)
		}
		if _, err := t.mgr.walMgr.Append(rec); err != nil {
			return fmt.Errorf("txn: commit append staged record: %w", err)
		}
	}
	if _, err := t.mgr.walMgr.Append(wal.Commit(t.id, seq)); err != nil {
		return fmt.Errorf("txn: commit append COMMIT record: %w", err)
	}

	// Durability barrier: after this, the commit survives a crash via
	// recovery regardless of whether segment writes below complete.
	if t.mgr.opts.SyncOnCommit {
		if err := t.mgr.walMgr.Sync(); err != nil {
			return fmt.Errorf("txn: commit sync wal: %w", err)
		}
	} else {
		if err := t.mgr.walMgr.Flush(); err != nil {
			return fmt.Errorf("txn: commit flush wal: %w", err)
		}
	}

	for k, op := range ops {
		rec := segment.Record{Kind: op.kind, Collection: k.collection, Entity: k.entity, Sequence: seq, Payload: op.payload}
		if _, _, err := t.mgr.segments.Append(rec); err != nil {
			return fmt.Errorf("txn: commit write segment record: %w", err)
		}
	}
	if err := t.mgr.segments.Flush(); err != nil {
		return fmt.Errorf("txn: commit flush segments: %w", err)
	}

	t.mgr.publishCommitted(seq)

	t.mu.Lock()
	t.state = StateCommitted
	t.mu.Unlock()
	t.mgr.forget(t.id)
	if m := t.mgr.opts.Metrics; m != nil {
		m.CommitsTotal.Inc()
		m.CommitLatency.Observe(time.Since(start).Seconds())
	}
	t.release()
	return nil
}

// Abort appends an ABORT record and discards the transaction's staged
// writes. Only valid on a write transaction.
func (t *Transaction) Abort() error {
	t.mu.Lock()
	if !t.write {
		t.mu.Unlock()
		return fmt.Errorf("%w: Abort on a read-only transaction", ErrInvalidOperation)
	}
	if t.state != StateActive {
		t.mu.Unlock()
		return fmt.Errorf("%w: transaction is %s", ErrInvalidOperation, t.state)
	}
	t.state = StateAborted
	t.mu.Unlock()

	_, err := t.mgr.walMgr.Append(wal.Abort(t.id))
	t.mgr.forget(t.id)
	if m := t.mgr.opts.Metrics; m != nil {
		m.AbortsTotal.Inc()
	}
	t.release()
	return err
}

// Close discards a read-only transaction. It is a no-op for write
// transactions; call Commit or Abort instead.
func (t *Transaction) Close() {
	if t.write {
		return
	}
	t.mgr.forget(t.id)
}

// release unlocks the manager's write mutex exactly once, for write
// transactions.
func (t *Transaction) release() {
	if !t.write {
		return
	}
	t.releaseOnce.Do(t.mgr.writeMu.Unlock)
}
