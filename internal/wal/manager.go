package wal

import (
	"log/slog"
	"sync"

	"github.com/entidb/entidb/internal/bytestore"
	"github.com/entidb/entidb/internal/metrics"
)

// Options configures a Manager.
type Options struct {
	// SyncOnWrite, when true, durably syncs the backend after every Append.
	// The transaction manager additionally controls durability at the
	// commit boundary via its own sync_on_commit option; this flag is for
	// callers that want every single record synced.
	SyncOnWrite bool
	Logger      *slog.Logger
	// Metrics is optional; when set, append counts and bytes are recorded.
	Metrics *metrics.Metrics
}

// Manager is the WAL manager: a single append-only framed log with a
// streaming recovery iterator, backed by a mutex-guarded handle around one
// backing store (Append/Sync/Close). Unlike a rotating multi-file log, this
// WAL is one continuous log truncated wholesale at checkpoint.
type Manager struct {
	mu      sync.Mutex
	backend bytestore.ByteStore
	opts    Options
	log     *slog.Logger
}

// Open wraps backend as a WAL manager.
func Open(backend bytestore.ByteStore, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{backend: backend, opts: opts, log: logger}
}

// Append encodes and appends record, returning its offset. It also syncs
// the backend when SyncOnWrite is enabled.
func (m *Manager) Append(r Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload := encodePayload(r)
	frame := encodeEnvelope(r.Type, payload)
	off, err := m.backend.Append(frame)
	if err != nil {
		return 0, err
	}
	if m.opts.SyncOnWrite {
		if err := m.backend.Sync(); err != nil {
			return 0, err
		}
	}
	if m.opts.Metrics != nil {
		m.opts.Metrics.WalAppendsTotal.Inc()
		m.opts.Metrics.WalBytesTotal.Add(float64(len(frame)))
	}
	m.log.Debug("wal append", "type", r.Type.String(), "txid", r.TxID, "offset", off)
	return off, nil
}

// Flush pushes buffered writes to the OS without a full fsync.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Flush()
}

// Sync durably persists the WAL. This is the durability barrier: after
// Sync returns, a committed transaction's COMMIT record is guaranteed to
// survive a crash.
func (m *Manager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Sync()
}

// Clear truncates the WAL to zero length, used after a checkpoint once all
// commits up to the checkpoint sequence are durable in sealed segments.
func (m *Manager) Clear() error {
	return m.Truncate(0)
}

// Truncate shrinks the WAL to newSize.
func (m *Manager) Truncate(newSize int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Truncate(newSize)
}

// Size returns the current WAL length in bytes.
func (m *Manager) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Size()
}

// ForEachStreaming walks records from startOffset, invoking fn for each. fn
// returns cont=false to stop early. See ForEachStreaming (package function)
// for the tolerated-truncation vs. fatal-corruption recovery policy.
func (m *Manager) ForEachStreaming(startOffset int64, fn func(offset int64, r Record) (cont bool, err error)) error {
	m.mu.Lock()
	backend := m.backend
	m.mu.Unlock()
	return ForEachStreaming(backend, startOffset, fn)
}
