package main

import (
	"chat-pubsub/storage"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// inspect dumps the hashes of a Badger store, one row per field.
func main() {
	dbPath := flag.String("db", "", "Path to badger DB")
	prefix := flag.String("prefix", "", "Key prefix to scan (user:, weather)")
	flag.Parse()
	if *dbPath == "" {
		log.Fatal("-db is required")
	}

	// Read-only so a running chat client can keep its lock
	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Field", "Value"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	store := storage.NewBadgerStore(db, logs.GetLoggerFromLevel(slog.LevelWarn))
	rows := 0
	err = store.Scan(*prefix, func(key string, fields map[string]string) error {
		names := lo.Keys(fields)
		slices.Sort(names)
		for _, name := range names {
			table.Append([]string{key, name, strings.TrimSpace(fields[name])})
			rows++
		}
		return nil
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}
	table.Render()
	fmt.Printf("%d field(s)\n", rows)
}
