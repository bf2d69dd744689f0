// Package engine ties the key codec, KeyFilter, SharedResource,
// TransactionIndex and Management DTOs together into the small
// end-to-end store described in spec.md §5.4: Begin registers a
// transaction, Get/Put claim the relevant page's latch through the
// buffer pool and consult the transaction index for visibility, and
// Snapshot reports live state through the management package.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	goccy "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/veloxdb/veloxdb/bufferpool"
	"github.com/veloxdb/veloxdb/journal"
	"github.com/veloxdb/veloxdb/key"
	"github.com/veloxdb/veloxdb/latch"
	"github.com/veloxdb/veloxdb/management"
	"github.com/veloxdb/veloxdb/txn"
	"github.com/veloxdb/veloxdb/velox"
	"github.com/veloxdb/veloxdb/volume"
)

// Config controls how an Engine opens its on-disk state and runs its
// background maintenance sweeps.
type Config struct {
	VolumeName       string
	VolumePath       string
	PageSize         int
	MaxPages         uint32
	JournalPath      string
	BufferPoolSize   int
	LogPath          string
	CleanupInterval  time.Duration
	LongRunningDepth int32
	MaxFreeListSize  int
}

// Engine is the façade over a single volume, its buffer pool, its
// journal, and a TransactionIndex.
type Engine struct {
	cfg Config

	volume  *volume.Volume
	pool    *bufferpool.Pool
	journal *journal.Journal
	txns    *txn.Index

	logWriter  *lumberjack.Logger
	instanceID string

	mu        sync.Mutex
	nextOwner int64

	cancel context.CancelFunc
	group  *errgroup.Group
}

// version is one multi-version record stored behind a key's page.
type version struct {
	VH    txn.VH
	Value []byte
}

// Open opens (creating if needed) the volume, journal and buffer pool
// named in cfg and starts its background maintenance goroutines.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.BufferPoolSize <= 0 {
		cfg.BufferPoolSize = 256
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Second
	}
	if cfg.LongRunningDepth <= 0 {
		cfg.LongRunningDepth = 1000
	}
	if cfg.MaxFreeListSize <= 0 {
		cfg.MaxFreeListSize = 4096
	}
	if cfg.VolumeName == "" {
		cfg.VolumeName = uuid.NewString()
	}

	v, err := volume.Open(cfg.VolumeName, cfg.VolumePath, cfg.PageSize, cfg.MaxPages)
	if err != nil {
		return nil, err
	}
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		v.Close()
		return nil, err
	}
	pool, err := bufferpool.New(cfg.BufferPoolSize)
	if err != nil {
		v.Close()
		j.Close()
		return nil, err
	}

	var logWriter *lumberjack.Logger
	if cfg.LogPath != "" {
		logWriter = &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
	}

	e := &Engine{
		cfg:        cfg,
		volume:     v,
		pool:       pool,
		journal:    j,
		txns:       txn.NewIndex(cfg.MaxFreeListSize, cfg.LongRunningDepth, 0),
		logWriter:  logWriter,
		instanceID: velox.NextUniqueID(),
	}

	gctx, cancel := context.WithCancel(ctx)
	gctx = velox.MakeBackgroundContext(gctx)
	g, gctx := errgroup.WithContext(gctx)
	e.cancel = cancel
	e.group = g
	g.Go(func() error { return e.cleanupSweep(gctx) })
	return e, nil
}

// Close stops the background sweeps and closes the underlying files.
func (e *Engine) Close() error {
	e.cancel()
	e.group.Wait()
	if err := e.volume.Close(); err != nil {
		return err
	}
	if err := e.journal.Close(); err != nil {
		return err
	}
	if e.logWriter != nil {
		return e.logWriter.Close()
	}
	return nil
}

func (e *Engine) logf(format string, args ...any) {
	if e.logWriter == nil {
		return
	}
	e.logWriter.Write([]byte(time.Now().UTC().Format(time.RFC3339) + " [" + e.instanceID + "] " + sprintf(format, args...) + "\n"))
}

func sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

func (e *Engine) cleanupSweep(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.txns.UpdateActiveTransactionCache()
			e.txns.Cleanup()
			e.logf("cleanup sweep: current=%d aborted=%d free=%d longRunning=%d",
				e.txns.CurrentCount(), e.txns.AbortedCount(), e.txns.FreeCount(), e.txns.LongRunningCount())
			if _, err := e.journal.Append(encodeJournalRecord("checkpoint", 0, 0)); err != nil {
				if velox.IsBackground(ctx) {
					e.logf("checkpoint record failed: %v", err)
					continue
				}
				return err
			}
		}
	}
}

// Txn is a handle to one in-progress transaction.
type Txn struct {
	Status *txn.Status
	owner  latch.Owner
	step   uint32
}

func (e *Engine) allocOwner() latch.Owner {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextOwner++
	return latch.Owner(e.nextOwner)
}

// Begin registers a new transaction against the engine's
// TransactionIndex.
func (e *Engine) Begin(ctx context.Context) (*Txn, error) {
	s, err := e.txns.RegisterTransaction()
	if err != nil {
		return nil, err
	}
	return &Txn{Status: s, owner: e.allocOwner()}, nil
}

// Commit proposes tc as t's commit timestamp, finalizes it, and
// appends a journal record of the outcome.
func (e *Engine) Commit(t *Txn, tc uint64) error {
	if err := e.txns.Commit(t.Status, tc); err != nil {
		return err
	}
	if err := e.txns.NotifyCompleted(t.Status, tc); err != nil {
		return err
	}
	_, err := e.journal.Append(encodeJournalRecord("commit", t.Status.TS(), tc))
	return err
}

// Abort marks t aborted and appends a journal record of the outcome.
func (e *Engine) Abort(t *Txn) error {
	if err := e.txns.Abort(t.Status); err != nil {
		return err
	}
	if err := e.txns.NotifyCompleted(t.Status, 0); err != nil {
		return err
	}
	_, err := e.journal.Append(encodeJournalRecord("abort", t.Status.TS(), 0))
	return err
}

func encodeJournalRecord(kind string, ts, tc uint64) []byte {
	b, _ := goccy.Marshal(struct {
		Kind string
		TS   uint64
		TC   uint64
	}{kind, ts, tc})
	return b
}

func frameKey(volumeName string, k *key.Key) bufferpool.FrameKey {
	h := fnv.New32a()
	h.Write(k.Bytes())
	return bufferpool.FrameKey{VolumeID: volumeName, PageID: h.Sum32()}
}

func (e *Engine) loadVersions(ctx context.Context, owner latch.Owner, pk bufferpool.FrameKey) ([]version, error) {
	f, err := e.pool.Get(ctx, owner, pk, false, 0, func(ctx context.Context) ([]byte, error) {
		b, err := e.volume.ReadPage(ctx, owner, volume.PageID(pk.PageID))
		if err != nil {
			return nil, nil // cache miss materializes an empty page
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	defer f.Resource.Release(owner)
	if len(f.Page) == 0 {
		return nil, nil
	}
	var versions []version
	if err := goccy.Unmarshal(f.Page, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// Put appends a new version of the value at k, visible to t's own
// later reads immediately and to other transactions once t commits.
// If another transaction's version is still pending at this key, Put
// calls WWDependency to wait for it to finalize before writing.
func (e *Engine) Put(ctx context.Context, t *Txn, k *key.Key, value []byte) error {
	pk := frameKey(e.cfg.VolumeName, k)
	versions, err := e.loadVersions(ctx, t.owner, pk)
	if err != nil {
		return err
	}
	if n := len(versions); n > 0 {
		last := versions[n-1]
		if last.VH.TS() != t.Status.TS() && e.txns.CommitStatus(last.VH, t.Status.TS(), t.step) == txn.Uncommitted {
			if _, err := e.txns.WWDependency(ctx, last.VH, t.Status.TS(), 30*time.Second); err != nil {
				return err
			}
		}
	}
	vh := t.Status.NextStep()
	t.step = vh.Step()
	t.Status.IncMVV()
	versions = append(versions, version{VH: vh, Value: append([]byte(nil), value...)})
	encoded, err := goccy.Marshal(versions)
	if err != nil {
		return err
	}
	if err := e.pool.Put(ctx, t.owner, pk, encoded); err != nil {
		return err
	}
	return e.volume.WritePage(ctx, t.owner, volume.PageID(pk.PageID), encoded)
}

// Get returns the most recent version of the value at k visible to t,
// consulting the TransactionIndex for each candidate version.
func (e *Engine) Get(ctx context.Context, t *Txn, k *key.Key) ([]byte, bool, error) {
	pk := frameKey(e.cfg.VolumeName, k)
	versions, err := e.loadVersions(ctx, t.owner, pk)
	if err != nil {
		return nil, false, err
	}
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		code := e.txns.CommitStatus(v.VH, t.Status.TS(), t.step)
		switch {
		case code == txn.Visible:
			return v.Value, true, nil
		case code > 0 && uint64(code) <= t.Status.TS():
			return v.Value, true, nil
		}
	}
	return nil, false, nil
}

// Snapshot aggregates one reading of every management DTO from live
// volume, buffer pool, journal and transaction index state.
func (e *Engine) Snapshot() management.Snapshot {
	return management.Snapshot{
		Header:      management.NewHeader("engine"),
		BufferPools: []management.BufferPoolInfo{e.pool.Stats(e.cfg.PageSize)},
		Volumes:     []management.VolumeInfo{e.volume.Stats()},
		Journal:     e.journal.Stats(),
		Recovery:    management.RecoveryInfo{Header: management.NewHeader("recovery")},
		Tasks: []management.TaskStatus{{
			Header:    management.NewHeader("engine"),
			TaskName:  "cleanup-sweep",
			State:     "RUNNING",
			StartTime: time.Now(),
		}},
	}
}
