// lockctl inspects a chestward data directory offline: lock records, marker
// associations, cross-store consistency and the sqlite event history.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"chestward.ai/internal/grid"
	"chestward.ai/internal/lock"
	"chestward.ai/internal/persistence/flatfile"
	"chestward.ai/internal/persistence/indexdb"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: lockctl -data <dir> locks|markers|verify|history [-actor A] [-n 20]")
	os.Exit(2)
}

func main() {
	dataDir := flag.String("data", "data", "data directory")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	sub := flag.NewFlagSet(cmd, flag.ExitOnError)
	actor := sub.String("actor", "", "filter history by actor id")
	limit := sub.Int("n", 20, "history entries to show")
	_ = sub.Parse(flag.Args()[1:])

	var err error
	switch cmd {
	case "locks":
		err = showLocks(*dataDir)
	case "markers":
		err = showMarkers(*dataDir)
	case "verify":
		err = verify(*dataDir)
	case "history":
		err = history(*dataDir, *actor, *limit)
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "lockctl:", err)
		os.Exit(1)
	}
}

func showLocks(dataDir string) error {
	rs, err := loadLocks(dataDir)
	if err != nil {
		return err
	}
	for _, r := range rs {
		marker := "-"
		if r.Marker != uuid.Nil {
			marker = r.Marker.String()
		}
		fmt.Printf("%-44s owner=%s (%s) marker=%s\n", r.LocationKey(), r.OwnerName, r.Owner, marker)
	}
	fmt.Printf("%d locked resource(s)\n", len(rs))
	return nil
}

func showMarkers(dataDir string) error {
	assoc, err := loadMarkers(dataDir)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(assoc))
	total := 0
	for k, ids := range assoc {
		keys = append(keys, k)
		total += len(ids)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-44s %d line(s)\n", k, len(assoc[k]))
	}
	fmt.Printf("%d location(s), %d marker identity(ies)\n", len(keys), total)
	return nil
}

// verify rebuilds the index from disk and checks that every position of
// every record maps back to that record, and that no position is claimed
// by two records.
func verify(dataDir string) error {
	rs, err := loadLocks(dataDir)
	if err != nil {
		return err
	}

	claimed := map[string]*lock.Resource{}
	problems := 0
	for _, r := range rs {
		if len(r.Positions) == 0 {
			fmt.Printf("BAD  %s: no positions\n", r.LocationKey())
			problems++
			continue
		}
		for _, p := range r.Positions {
			if p.World != r.World {
				fmt.Printf("BAD  %s: position %s outside world %s\n", r.LocationKey(), p.Key(), r.World)
				problems++
			}
			if prev, dup := claimed[p.Key()]; dup {
				fmt.Printf("BAD  %s: position %s also claimed by %s\n", r.LocationKey(), p.Key(), prev.LocationKey())
				problems++
				continue
			}
			claimed[p.Key()] = r
		}
	}

	ix := lock.NewIndex()
	ix.Replace(rs)
	for _, r := range rs {
		for _, p := range r.Positions {
			got, ok := ix.Get(p)
			if !ok || got.LocationKey() != r.LocationKey() {
				fmt.Printf("BAD  %s: index lookup via %s does not return the record\n", r.LocationKey(), p.Key())
				problems++
			}
		}
	}

	assoc, err := loadMarkers(dataDir)
	if err != nil {
		return err
	}
	for k, ids := range assoc {
		if _, err := grid.ParseKey(k); err != nil {
			fmt.Printf("BAD  marker key %q: %v\n", k, err)
			problems++
		}
		if len(ids) == 0 {
			fmt.Printf("BAD  marker key %s: empty identity list\n", k)
			problems++
		}
	}

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	fmt.Printf("ok: %d resource(s), %d position(s), %d marker location(s)\n", len(rs), len(claimed), len(assoc))
	return nil
}

func history(dataDir, actor string, limit int) error {
	idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "history.db"))
	if err != nil {
		return err
	}
	defer idx.Close()

	entries, err := idx.History(actor, limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		who := e.ActorName
		if who == "" {
			who = e.Actor
		}
		fmt.Printf("%-30s %-14s %-20s %s:%d,%d,%d %s\n",
			e.At, e.Action, who, e.World, e.Pos[0], e.Pos[1], e.Pos[2], e.Detail)
	}
	return nil
}

func loadLocks(dataDir string) ([]*lock.Resource, error) {
	return flatfile.NewLockFile(dataDir, nil).Load()
}

func loadMarkers(dataDir string) (map[string][]uuid.UUID, error) {
	return flatfile.NewMarkerFile(dataDir, nil).Load()
}
