// Command inspect dumps the hub's BadgerDB keyspace for offline
// debugging. It opens the store read-only, so it can run next to a
// stopped server without touching its data.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "inspect failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		return err
	}

	prefix := flag.String("prefix", "", "key prefix to filter on (e.g. msg:, conv:, member:)")
	limit := flag.Int("limit", 100, "maximum number of rows to print")
	raw := flag.Bool("raw", false, "print values verbatim instead of compacted JSON")
	flag.Parse()

	opts := badger.DefaultOptions(cfg.BadgerFilepath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Size", "Value"})
	table.SetAutoWrapText(false)

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seek := []byte(*prefix)
		for it.Seek(seek); it.ValidForPrefix(seek); it.Next() {
			if count >= *limit {
				break
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			table.Append([]string{
				string(item.Key()),
				fmt.Sprintf("%dB", len(value)),
				renderValue(value, *raw),
			})
			count++
		}
		return nil
	})
	if err != nil {
		return err
	}

	color.Cyan.Printf("store: %s prefix: %q\n", cfg.BadgerFilepath, *prefix)
	table.Render()
	color.Green.Printf("%d row(s)\n", count)
	return nil
}

// renderValue compacts JSON values for the table; empty marker keys and
// non-JSON payloads fall through untouched.
func renderValue(value []byte, raw bool) string {
	const maxShown = 120

	if len(value) == 0 {
		return "<empty>"
	}
	shown := string(value)
	if !raw && json.Valid(value) {
		var compact map[string]any
		if err := json.Unmarshal(value, &compact); err == nil {
			if b, err := json.Marshal(compact); err == nil {
				shown = string(b)
			}
		}
	}
	if len(shown) > maxShown {
		shown = shown[:maxShown] + "..."
	}
	return shown
}
