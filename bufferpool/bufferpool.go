// Package bufferpool implements the buffer pool described in spec.md
// §5.2: a bounded cache of page frames, each guarded by its own
// latch.SharedResource, that refuses to let a claimed frame be evicted
// out from under its holder.
package bufferpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/veloxdb/veloxdb/latch"
	"github.com/veloxdb/veloxdb/management"
	"github.com/veloxdb/veloxdb/velox"
)

// FrameKey identifies a page frame by the volume it belongs to and its
// page number within that volume.
type FrameKey struct {
	VolumeID string
	PageID   uint32
}

// Frame is one cached page: its bytes and the latch guarding access to
// them. The latch's claim count is what a Pool consults before letting
// the LRU evict a frame.
type Frame struct {
	Key      FrameKey
	Resource *latch.SharedResource
	Page     []byte
}

// Loader fetches a page's bytes on a cache miss (typically
// volume.Volume.ReadPage).
type Loader func(ctx context.Context) ([]byte, error)

// Pool is a claim-aware LRU cache of page frames.
type Pool struct {
	mu    sync.Mutex
	cache *lru.Cache[FrameKey, *Frame]

	// pinnedMu guards pinned independently of mu: onEvict runs
	// synchronously inside cache.Add, which callers reach while already
	// holding mu, so checking pinned status cannot itself take mu.
	pinnedMu sync.Mutex
	pinned   velox.Set[FrameKey]

	hitCount   atomic.Int64
	missCount  atomic.Int64
	newCount   atomic.Int64
	evictCount atomic.Int64
	writeCount atomic.Int64
}

// Pin marks key as exempt from eviction, e.g. for a root page a caller
// expects to keep hot across many transactions.
func (p *Pool) Pin(key FrameKey) {
	p.pinnedMu.Lock()
	defer p.pinnedMu.Unlock()
	p.pinned.Add(key)
}

// Unpin undoes Pin, making key eligible for eviction again.
func (p *Pool) Unpin(key FrameKey) {
	p.pinnedMu.Lock()
	defer p.pinnedMu.Unlock()
	p.pinned.Del(key)
}

func (p *Pool) isPinned(key FrameKey) bool {
	p.pinnedMu.Lock()
	defer p.pinnedMu.Unlock()
	return p.pinned.Has(key)
}

// New returns a Pool holding at most size frames.
func New(size int) (*Pool, error) {
	p := &Pool{pinned: velox.Set[FrameKey]{}}
	cache, err := lru.NewWithEvict[FrameKey, *Frame](size, p.onEvict)
	if err != nil {
		return nil, err
	}
	p.cache = cache
	return p, nil
}

// onEvict is golang-lru's eviction callback. Since the library cannot
// be asked to veto an eviction before it happens, a frame that is
// still claimed, or pinned, when evicted is immediately reinserted
// (which also makes it most-recently-used again), approximating
// "refuse to evict a frame whose latch reports a held claim, requeuing
// it instead."
func (p *Pool) onEvict(key FrameKey, f *Frame) {
	if f.Resource.ClaimCount() > 0 || p.isPinned(key) {
		p.cache.Add(key, f)
		return
	}
	p.evictCount.Add(1)
}

// Get returns the frame for key, claiming its latch (read or write)
// before returning it. On a cache miss, load fetches the page's bytes.
// Callers must Release the frame's Resource when done.
func (p *Pool) Get(ctx context.Context, owner latch.Owner, key FrameKey, write bool, timeout int64, load Loader) (*Frame, error) {
	p.mu.Lock()
	f, ok := p.cache.Get(key)
	if !ok {
		f = &Frame{Key: key, Resource: latch.New()}
		p.cache.Add(key, f)
		p.newCount.Add(1)
		p.missCount.Add(1)
	} else {
		p.hitCount.Add(1)
	}
	p.mu.Unlock()

	d := time.Duration(timeout)
	if write {
		if err := f.Resource.WriteClaim(ctx, owner, d); err != nil {
			return nil, err
		}
	} else {
		if err := f.Resource.ReadClaim(ctx, owner, d); err != nil {
			return nil, err
		}
	}

	if !ok {
		data, err := load(ctx)
		if err != nil {
			f.Resource.Release(owner)
			return nil, err
		}
		f.Page = data
	}
	return f, nil
}

// Put writes data into the frame for key (claiming write access,
// creating the frame if needed) and releases the claim.
func (p *Pool) Put(ctx context.Context, owner latch.Owner, key FrameKey, data []byte) error {
	p.mu.Lock()
	f, ok := p.cache.Get(key)
	if !ok {
		f = &Frame{Key: key, Resource: latch.New()}
		p.cache.Add(key, f)
		p.newCount.Add(1)
	}
	p.mu.Unlock()

	if err := f.Resource.WriteClaim(ctx, owner, 0); err != nil {
		return err
	}
	defer func() {
		f.Resource.Touch()
		f.Resource.Release(owner)
	}()
	f.Page = data
	f.Resource.SetStatus(latch.StatusDirty)
	p.writeCount.Add(1)
	return nil
}

// Len returns the number of frames currently cached.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Len()
}

// Stats populates a management.BufferPoolInfo snapshot.
func (p *Pool) Stats(bufferSize int) management.BufferPoolInfo {
	return management.BufferPoolInfo{
		Header:      management.NewHeader("bufferpool"),
		BufferSize:  bufferSize,
		BufferCount: p.Len(),
		HitCount:    p.hitCount.Load(),
		MissCount:   p.missCount.Load(),
		NewCount:    p.newCount.Load(),
		EvictCount:  p.evictCount.Load(),
		WriteCount:  p.writeCount.Load(),
	}
}
