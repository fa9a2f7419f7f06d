// Package indexdb keeps a queryable sqlite index of audited lock activity.
// It is a secondary index: the flat files remain the source of truth for
// live state, and the JSONL event logs for history. Writes are buffered
// through a single goroutine so game-logic callers never block on disk.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"chestward.ai/internal/persistence/eventlog"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan eventlog.Entry
	wg   sync.WaitGroup
	once sync.Once

	// mu orders Write against Close: the closed check and the channel send
	// happen under the read lock, so Close cannot close the channel between
	// them. Host shutdown runs while world threads may still emit events.
	mu     sync.RWMutex
	closed bool
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Generous buffer: a raid on a storage room produces a burst of
		// break/deny events and none of them may stall the world loop.
		ch: make(chan eventlog.Entry, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			action TEXT NOT NULL,
			actor TEXT NOT NULL,
			actor_name TEXT,
			world TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			detail TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_actor_at ON events(actor, at);`,
		`CREATE INDEX IF NOT EXISTS idx_events_pos ON events(world, x, z, y);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Write queues an entry for indexing. If the indexer falls behind the
// entry is dropped; the JSONL logs remain complete. Safe to call
// concurrently with Close.
func (s *SQLiteIndex) Write(e eventlog.Entry) error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- e:
	default:
	}
	return nil
}

// History returns the most recent indexed events, newest first, optionally
// filtered to one actor.
func (s *SQLiteIndex) History(actor string, limit int) ([]eventlog.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT at, action, actor, COALESCE(actor_name,''), world, x, y, z, COALESCE(detail,'')
		FROM events`
	args := []any{}
	if actor != "" {
		q += ` WHERE actor = ?`
		args = append(args, actor)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []eventlog.Entry
	for rows.Next() {
		var e eventlog.Entry
		if err := rows.Scan(&e.At, &e.Action, &e.Actor, &e.ActorName, &e.World,
			&e.Pos[0], &e.Pos[1], &e.Pos[2], &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insert, _ := s.db.Prepare(`INSERT INTO events(at,action,actor,actor_name,world,x,y,z,detail)
		VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insert != nil {
			_ = insert.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	tick := time.NewTicker(commitMaxWait)
	defer tick.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			begin()
			if tx == nil || insert == nil {
				continue
			}
			if _, err := tx.Stmt(insert).Exec(
				e.At, e.Action, e.Actor, e.ActorName, e.World,
				e.Pos[0], e.Pos[1], e.Pos[2], e.Detail,
			); err != nil {
				rollback()
				continue
			}
			opCount++
			if opCount >= commitEvery {
				commit()
			}
		case <-tick.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		}
	}
}
