package wal

import "github.com/entidb/entidb/internal/bytestore"

// RecoveredState summarizes what streaming recovery observed: the next
// txid and next sequence are max_observed+1, and the committed-sequence
// watermark is the maximum commit sequence seen.
type RecoveredState struct {
	MaxTxID        TxID
	MaxSequence    Sequence
	LastCheckpoint Sequence
}

// NextTxID returns the txid the transaction manager should start allocating
// from after recovery.
func (s RecoveredState) NextTxID() TxID { return s.MaxTxID + 1 }

// NextSequence returns the sequence the transaction manager should start
// allocating from after recovery.
func (s RecoveredState) NextSequence() Sequence { return s.MaxSequence + 1 }

// Recover performs a two-pass streaming recovery scan:
//
//  1. Pass 1 builds committed_txns (txid -> commit sequence) from COMMIT
//     records, and tracks the max observed txid/sequence and the last
//     CHECKPOINT's sequence.
//  2. Pass 2 replays PUT/DELETE records whose txid is in committed_txns,
//     calling apply with the commit sequence taken from pass 1.
//     Non-committed transactions are discarded.
//
// apply is expected to feed the record into the segment store.
func Recover(backend bytestore.ByteStore, apply func(rec Record, seq Sequence) error) (RecoveredState, error) {
	committed := make(map[TxID]Sequence)
	var state RecoveredState

	err := ForEachStreaming(backend, 0, func(_ int64, r Record) (bool, error) {
		switch r.Type {
		case RecordBegin:
			if r.TxID > state.MaxTxID {
				state.MaxTxID = r.TxID
			}
		case RecordAbort:
			if r.TxID > state.MaxTxID {
				state.MaxTxID = r.TxID
			}
		case RecordCommit:
			committed[r.TxID] = r.Sequence
			if r.TxID > state.MaxTxID {
				state.MaxTxID = r.TxID
			}
			if r.Sequence > state.MaxSequence {
				state.MaxSequence = r.Sequence
			}
		case RecordCheckpoint:
			state.LastCheckpoint = r.Sequence
			if r.Sequence > state.MaxSequence {
				state.MaxSequence = r.Sequence
			}
		}
		return true, nil
	})
	if err != nil {
		return RecoveredState{}, err
	}

	err = ForEachStreaming(backend, 0, func(_ int64, r Record) (bool, error) {
		if r.Type != RecordPut && r.Type != RecordDelete {
			return true, nil
		}
		seq, ok := committed[r.TxID]
		if !ok {
			return true, nil
		}
		if apply != nil {
			if err := apply(r, seq); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return RecoveredState{}, err
	}

	return state, nil
}
