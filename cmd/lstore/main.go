// Command lstore is a small demonstration driver for the storage engine:
// it loads records, runs a mix of updates and reads, and prints engine
// statistics.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/SimonWaldherr/lstore"
)

var (
	flagRecords = flag.Int64("records", 10000, "Number of records to insert")
	flagUpdates = flag.Int64("updates", 5000, "Number of updates to apply")
	flagConfig  = flag.String("config", "", "Path to an engine config YAML (optional)")
	flagSnap    = flag.String("snapshot", "", "Snapshot file to open/close (optional)")
)

func main() {
	flag.Parse()

	cfg := lstore.DefaultEngineConfig()
	if *flagConfig != "" {
		var err error
		cfg, err = lstore.LoadConfig(*flagConfig)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	db := lstore.NewDatabaseWithConfig(cfg)
	if *flagSnap != "" {
		if err := db.Open(*flagSnap); err != nil {
			log.Fatalf("open snapshot: %v", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Printf("close: %v", err)
			}
		}()
	}

	table, err := db.CreateTable("grades", 5, 0)
	if err != nil {
		log.Fatalf("create table: %v", err)
	}
	q := lstore.NewQuery(table, nil)

	p := message.NewPrinter(language.English)

	inserted := int64(0)
	for i := int64(0); i < *flagRecords; i++ {
		if q.Insert(i, i%97, i%13, 0, 0) {
			inserted++
		}
	}
	p.Printf("inserted %d records\n", inserted)

	updated := int64(0)
	for i := int64(0); i < *flagUpdates; i++ {
		key := i % *flagRecords
		if q.Update(key, nil, lstore.Int(i), nil, nil, nil) {
			updated++
		}
	}
	p.Printf("applied %d updates\n", updated)

	recs := q.Select(42, 0, []int{1, 1, 1, 1, 1})
	if len(recs) == 0 {
		fmt.Fprintln(os.Stderr, "record 42 missing")
		os.Exit(1)
	}
	p.Printf("record 42 latest image: %v\n", recs[0].Columns)

	if old := q.SelectVersion(42, 0, []int{1, 1, 1, 1, 1}, -1); len(old) > 0 {
		p.Printf("record 42 base image:   %v\n", old[0].Columns)
	}

	if total, ok := q.Sum(0, *flagRecords-1, 1); ok {
		p.Printf("sum over column 1: %d\n", total)
	}

	stats := db.BufferPool().Stats()
	p.Printf("buffer pool: %d cached, %d hits, %d misses, %d evictions\n",
		stats.Cached, stats.Hits, stats.Misses, stats.Evictions)
}
