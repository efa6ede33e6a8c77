package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/entidb/entidb/entidb"
)

// shellCmd is an interactive REPL over an open database: a liner-based
// command loop with a history file, tab completion, and line-at-a-time
// dispatch over EntiDB's collection/entity/payload model.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open an interactive shell against the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		return runShell(db)
	},
}

type shell struct {
	db    *entidb.DB
	liner *liner.State
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".entidb_history")
}

func runShell(db *entidb.DB) error {
	s := &shell{db: db, liner: liner.NewLiner()}
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)
	if f, err := os.Open(historyFilePath()); err == nil {
		s.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("entidb shell. Type 'help' for available commands.")
	for {
		line, err := s.liner.Prompt("entidb> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nbye")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd, args := strings.ToLower(parts[0]), parts[1:]
		switch cmd {
		case "exit", "quit", "q":
			s.saveHistory()
			return nil
		case "help", "?":
			s.printHelp()
		case "put":
			s.cmdPut(args)
		case "get":
			s.cmdGet(args)
		case "del", "delete":
			s.cmdDelete(args)
		case "list":
			s.cmdList(args)
		case "checkpoint":
			s.cmdCheckpoint()
		case "compact":
			s.cmdCompact()
		case "stats":
			printStats(s.db)
		default:
			fmt.Printf("unknown command: %s (type 'help')\n", cmd)
		}
	}
	s.saveHistory()
	return nil
}

func (s *shell) saveHistory() {
	path := historyFilePath()
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		s.liner.WriteHistory(f)
		f.Close()
	}
}

func (s *shell) completer(line string) []string {
	commands := []string{"put", "get", "del", "delete", "list", "checkpoint", "compact", "stats", "help", "exit", "quit", "q"}
	var out []string
	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}
	return out
}

func (s *shell) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <collection> <entity-uuid> <value>   Write and commit a value")
	fmt.Println("  get <collection> <entity-uuid>           Read the committed value")
	fmt.Println("  del <collection> <entity-uuid>           Tombstone an entity")
	fmt.Println("  list <collection>                         List live entities")
	fmt.Println("  checkpoint                                Force a WAL checkpoint")
	fmt.Println("  compact                                   Run compaction")
	fmt.Println("  stats                                     Print counters")
	fmt.Println("  help                                      Show this help")
	fmt.Println("  exit / quit / q                           Leave the shell")
}

func (s *shell) cmdPut(args []string) {
	if len(args) < 3 {
		fmt.Println("usage: put <collection> <entity-uuid> <value>")
		return
	}
	collID, err := s.db.CollectionID(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	entity, err := parseEntity(args[1])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	tx, err := s.db.BeginWrite()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	value := strings.Join(args[2:], " ")
	if err := tx.Put(collID, entity, []byte(value)); err != nil {
		_ = tx.Abort()
		fmt.Println("error:", err)
		return
	}
	if err := tx.Commit(); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("OK")
}

func (s *shell) cmdGet(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: get <collection> <entity-uuid>")
		return
	}
	collID, err := s.db.CollectionID(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	entity, err := parseEntity(args[1])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	tx, err := s.db.BeginRead()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer tx.Close()
	payload, found, err := tx.Get(collID, entity)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if !found {
		fmt.Println("(not found)")
		return
	}
	fmt.Println(string(payload))
}

func (s *shell) cmdDelete(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: del <collection> <entity-uuid>")
		return
	}
	collID, err := s.db.CollectionID(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	entity, err := parseEntity(args[1])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	tx, err := s.db.BeginWrite()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if err := tx.Delete(collID, entity); err != nil {
		_ = tx.Abort()
		fmt.Println("error:", err)
		return
	}
	if err := tx.Commit(); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("OK")
}

func (s *shell) cmdList(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: list <collection>")
		return
	}
	collID, err := s.db.CollectionID(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	tx, err := s.db.BeginRead()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer tx.Close()
	count := 0
	err = tx.IterCollection(collID, func(entity entidb.EntityID, payload []byte) error {
		count++
		fmt.Printf("%s  %d bytes\n", entity, len(payload))
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("(%d entities)\n", count)
}

func (s *shell) cmdCheckpoint() {
	if err := s.db.Checkpoint(); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("checkpoint complete")
}

func (s *shell) cmdCompact() {
	if err := s.db.Compact(); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("compaction complete")
}
