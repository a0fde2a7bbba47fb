// fortcat is an interactive inspector for fortsort run files: open a run
// file (raw or LZ4-framed) and poke at it with a handful of commands
// instead of writing a one-off program every time a run looks wrong.
//
// Usage:
//
//	fortcat [--compress] <run-file>
//
// Commands (in REPL):
//
//	scan [limit]    Print records in file order (default limit 20)
//	stat            Print record count and byte totals
//	dump <n>        Print the nth record (0-indexed), quoted or as hex
//	help            Show this help
//	exit / quit / q Exit
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/peterh/liner"

	"github.com/calvinalkan/fortsort/internal/logx"
	"github.com/calvinalkan/fortsort/pkg/runio"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	set := flag.NewFlagSet("fortcat", flag.ContinueOnError)
	compress := set.Bool("compress", false, "the run file was written with compress=true")

	if err := set.Parse(args[1:]); err != nil {
		return err
	}

	rest := set.Args()
	if len(rest) != 1 {
		return errors.New("usage: fortcat [--compress] <run-file>")
	}

	records, err := loadRun(rest[0], *compress)
	if err != nil {
		return err
	}

	repl := &repl{path: rest[0], records: records}

	return repl.run()
}

// loadRun drains every record in a run file into memory. Fine for an
// inspection tool even though the production merge path never materializes
// a whole run at once; fortcat trades that constant-memory discipline for
// simplicity since it's an operator aid, not the sorting hot path.
func loadRun(path string, compress bool) ([][]byte, error) {
	r, err := runio.NewReader(path, 1<<20, 0.9, compress, logx.Discard)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer r.Close()

	var records [][]byte

	for {
		rec, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}

		if rec == nil {
			break
		}

		records = append(records, rec)
	}

	return records, nil
}

type repl struct {
	path    string
	records [][]byte
	liner   *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".fortcat_history")
}

func (r *repl) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("fortcat - inspecting %s (%d records)\n", r.path, len(r.records))
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("fortcat> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		cmdArgs := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			r.saveHistory()
			return nil
		case "help", "?":
			r.printHelp()
		case "scan", "ls", "list":
			r.cmdScan(cmdArgs)
		case "stat", "info":
			r.cmdStat()
		case "dump":
			r.cmdDump(cmdArgs)
		default:
			fmt.Printf("unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *repl) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		r.liner.WriteHistory(f)
		f.Close()
	}
}

func (r *repl) completer(line string) []string {
	commands := []string{"scan", "ls", "list", "stat", "info", "dump", "help", "exit", "quit", "q"}

	var out []string

	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}

	return out
}

func (r *repl) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  scan [limit]    Print records in file order (default limit 20)")
	fmt.Println("  stat            Print record count and byte totals")
	fmt.Println("  dump <n>        Print the nth record (0-indexed), quoted or as hex")
	fmt.Println("  help            Show this help")
	fmt.Println("  exit / quit / q Exit")
}

func (r *repl) cmdScan(args []string) {
	limit := 20

	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Println("invalid limit:", args[0])
			return
		}

		limit = n
	}

	for i, rec := range r.records {
		if i >= limit {
			fmt.Printf("... %d more records\n", len(r.records)-limit)
			break
		}

		fmt.Printf("%6d  %s\n", i, formatRecord(rec))
	}
}

func (r *repl) cmdStat() {
	var total int

	for _, rec := range r.records {
		total += len(rec)
	}

	fmt.Printf("records: %d\n", len(r.records))
	fmt.Printf("total payload bytes: %d\n", total)

	if len(r.records) > 0 {
		fmt.Printf("average record length: %.1f\n", float64(total)/float64(len(r.records)))
	}
}

func (r *repl) cmdDump(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: dump <n>")
		return
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 || n >= len(r.records) {
		fmt.Printf("index out of range: %s\n", args[0])
		return
	}

	fmt.Println(formatRecord(r.records[n]))
}

// formatRecord shows a record as a quoted string if every byte is
// printable ASCII, and as hex otherwise.
func formatRecord(rec []byte) string {
	printable := true

	for _, b := range rec {
		if b < 32 || b > 126 {
			printable = false
			break
		}
	}

	if printable {
		return fmt.Sprintf("%q", string(rec))
	}

	return hex.EncodeToString(rec)
}
