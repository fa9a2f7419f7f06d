// Package chestward assembles the lock index, marker registry, durable
// store and audit sinks into one module the host embeds. The host supplies
// block queries and entity lifecycle; chestward owns everything else,
// including the per-world execution gateway when the host does not provide
// its own.
package chestward

import (
	"log"

	"github.com/pkg/errors"

	"chestward.ai/internal/config"
	"chestward.ai/internal/host"
	"chestward.ai/internal/lock"
	"chestward.ai/internal/marker"
	"chestward.ai/internal/persistence/eventlog"
	"chestward.ai/internal/persistence/flatfile"
	"chestward.ai/internal/persistence/indexdb"
	"chestward.ai/internal/service"
	"chestward.ai/internal/worldq"
)

type Module struct {
	Cfg     config.Config
	Locks   *lock.Index
	Markers *marker.Registry
	Service *service.Service

	gateway    *worldq.Gateway
	flusher    *flatfile.Flusher
	lockFile   *flatfile.LockFile
	markerFile *flatfile.MarkerFile
	events     *eventlog.Writer
	index      *indexdb.SQLiteIndex
}

// Open loads the durable state from cfg.DataDir and starts the autosave
// loop. Pass exec as nil to let the module run its own per-world gateway.
func Open(cfg config.Config, blocks host.BlockQuery, entities host.Entities, exec host.Executor) (*Module, error) {
	m := &Module{Cfg: cfg}
	if exec == nil {
		m.gateway = worldq.New()
		exec = m.gateway
	}

	m.Locks = lock.NewIndex()
	m.Markers = marker.NewRegistry(entities, exec, cfg.LineSpacing, cfg.TextFaceOffset)

	m.lockFile = flatfile.NewLockFile(cfg.DataDir, m.Locks.Snapshot)
	rs, err := m.lockFile.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load locks")
	}
	m.Locks.Replace(rs)
	m.Locks.OnChange(m.lockFile.MarkDirty)

	m.markerFile = flatfile.NewMarkerFile(cfg.DataDir, m.Markers.Snapshot)
	assoc, err := m.markerFile.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load markers")
	}
	m.Markers.Replace(assoc)
	m.Markers.OnChange(m.markerFile.MarkDirty)

	var sinks []service.Sink
	if cfg.Events.JSONL {
		m.events = eventlog.NewWriter(cfg.DataDir)
		sinks = append(sinks, m.events)
	}
	if cfg.Events.SQLitePath != "" {
		idx, err := indexdb.OpenSQLite(cfg.Events.SQLitePath)
		if err != nil {
			return nil, errors.Wrap(err, "open event index")
		}
		m.index = idx
		sinks = append(sinks, idx)
	}

	m.Service = service.New(blocks, exec, m.Locks, m.Markers, cfg, sinks...)

	m.flusher = flatfile.NewFlusher(cfg.AutosaveInterval(), m.lockFile, m.markerFile)
	m.flusher.Start()

	log.Printf("chestward: loaded %d locked resource(s), %d marker location(s) from %s",
		m.Locks.Count(), len(assoc), cfg.DataDir)
	return m, nil
}

// History returns recent audit entries from the sqlite index, newest first.
func (m *Module) History(actor string, limit int) ([]eventlog.Entry, error) {
	if m.index == nil {
		return nil, errors.New("event index not configured")
	}
	return m.index.History(actor, limit)
}

// Close drains the world gateway, forces a final flush and closes the audit
// sinks. Safe to call once during host shutdown.
func (m *Module) Close() {
	if m.gateway != nil {
		m.gateway.Close()
	}
	m.flusher.Close()
	if m.events != nil {
		if err := m.events.Close(); err != nil {
			log.Printf("chestward: closing event log: %v", err)
		}
	}
	if m.index != nil {
		if err := m.index.Close(); err != nil {
			log.Printf("chestward: closing event index: %v", err)
		}
	}
}
