package entidb

import "fmt"

// Compact runs the compaction algorithm over every sealed
// segment, then deletes the superseded segment files and fsyncs SEGMENTS/
// It is a no-op if there are no sealed
// segments to merge.
func (db *DB) Compact() error {
	if db.closed.Load() {
		return ErrDatabaseClosed
	}
	currentSeq := db.txns.CommittedSequence()
	removedIDs, newID, err := db.segments.Compact(currentSeq, db.cfg.TombstoneRetention)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSegmentCorruption, err)
	}
	if len(removedIDs) == 0 {
		return nil
	}

	for _, id := range removedIDs {
		if err := removeSegmentFile(db.dir, id); err != nil {
			return err
		}
	}
	if err := fsyncDir(segmentsDir(db.dir)); err != nil {
		return err
	}
	db.log.Info("compaction complete", "removed", removedIDs, "new_id", newID)
	return nil
}
