package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entidb/entidb/entidb"
)

// parseEntity accepts a canonical UUID string
// (e.g. "3fa85f64-5717-4562-b3fc-2c963f66afa6") and returns the 16-byte
// entity id, EntiDB's opaque identifier type.
func parseEntity(s string) (entidb.EntityID, error) {
	id, err := entidb.ParseEntityID(s)
	if err != nil {
		return entidb.EntityID{}, fmt.Errorf("invalid entity id %q (expected a UUID): %w", s, err)
	}
	return id, nil
}

var putCmd = &cobra.Command{
	Use:   "put <collection> <entity> <value>",
	Short: "Write a value to (collection, entity) in a single committed transaction",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		collID, err := db.CollectionID(args[0])
		if err != nil {
			return err
		}
		entity, err := parseEntity(args[1])
		if err != nil {
			return err
		}

		tx, err := db.BeginWrite()
		if err != nil {
			return err
		}
		if err := tx.Put(collID, entity, []byte(args[2])); err != nil {
			_ = tx.Abort()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <collection> <entity>",
	Short: "Read the committed value at (collection, entity)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		collID, err := db.CollectionID(args[0])
		if err != nil {
			return err
		}
		entity, err := parseEntity(args[1])
		if err != nil {
			return err
		}

		tx, err := db.BeginRead()
		if err != nil {
			return err
		}
		defer tx.Close()

		payload, found, err := tx.Get(collID, entity)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("(not found)")
			return nil
		}
		fmt.Println(string(payload))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <collection> <entity>",
	Short: "Tombstone (collection, entity) in a single committed transaction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		collID, err := db.CollectionID(args[0])
		if err != nil {
			return err
		}
		entity, err := parseEntity(args[1])
		if err != nil {
			return err
		}

		tx, err := db.BeginWrite()
		if err != nil {
			return err
		}
		if err := tx.Delete(collID, entity); err != nil {
			_ = tx.Abort()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list <collection>",
	Short: "List every live entity in a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		collID, err := db.CollectionID(args[0])
		if err != nil {
			return err
		}
		tx, err := db.BeginRead()
		if err != nil {
			return err
		}
		defer tx.Close()

		count := 0
		err = tx.IterCollection(collID, func(entity entidb.EntityID, payload []byte) error {
			count++
			fmt.Printf("%s  %d bytes\n", entity, len(payload))
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("(%d entities)\n", count)
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Run compaction over every sealed segment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Compact(); err != nil {
			return err
		}
		fmt.Println("compaction complete")
		return nil
	},
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Force a WAL checkpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Checkpoint(); err != nil {
			return err
		}
		fmt.Println("checkpoint complete")
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print storage and Prometheus counter stats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		printStats(db)
		return nil
	},
}

func printStats(db *entidb.DB) {
	ids := db.SegmentIDs()
	fmt.Printf("segments %d (active %d)\n", len(ids), ids[len(ids)-1])
	mf := db.Metrics()
	families, err := mf.Registry.Gather()
	if err != nil {
		fmt.Println("error gathering metrics:", err)
		return
	}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			}
			fmt.Printf("%s %v\n", f.GetName(), value)
		}
	}
}
