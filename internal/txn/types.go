package txn

import (
	"github.com/entidb/entidb/internal/segment"
	"github.com/entidb/entidb/internal/wal"
)

// State is a transaction's lifecycle stage.
type State int

const (
	StateActive State = iota
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// stageKey identifies one staged write within a transaction's local map.
type stageKey struct {
	collection uint32
	entity     wal.EntityID
}

// stagedOp is one pending write or delete. Kind reuses segment.Kind since a
// staged op becomes a segment record verbatim at commit.
type stagedOp struct {
	kind    segment.Kind
	payload []byte
}
