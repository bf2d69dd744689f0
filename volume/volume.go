// Package volume implements the named, page-addressable file a
// TransactionIndex-aware engine stores pages in (spec.md §5.1). A
// Volume is a tkrzw hash database of opaque page blobs keyed by page
// number, with one latch.SharedResource per page that has been read or
// written. Real on-disk page layout (free space maps, slotted
// records) is out of scope per spec.md §1; pages here are opaque
// blobs, enough to exercise the buffer pool and the latch under real
// I/O.
package volume

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/estraier/tkrzw-go"
	"github.com/pkg/errors"

	"github.com/veloxdb/veloxdb/latch"
	"github.com/veloxdb/veloxdb/management"
	"github.com/veloxdb/veloxdb/velox"
)

// PageID identifies a page within a Volume.
type PageID uint32

// checkStatus mirrors storage/dbm.checkStatus: converts a tkrzw status
// to a Go error, mapping "not found" onto os.ErrNotExist.
func checkStatus(stat *tkrzw.Status, notFoundMsg string) error {
	if stat.GetCode() == tkrzw.StatusNotFoundError {
		return errors.Wrapf(os.ErrNotExist, "%s", notFoundMsg)
	}
	if !stat.IsOK() {
		return velox.WithStack(stat)
	}
	return nil
}

func pageKey(id PageID) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(id))
	return string(b[:])
}

// Volume is a named page-addressable file.
type Volume struct {
	name     string
	path     string
	pageSize int
	openTime time.Time

	dbm *tkrzw.DBM

	latchMu sync.Mutex
	latches map[PageID]*latch.SharedResource

	nextPage  uint32
	maxPages  uint32
	pageCount int64
}

// Open opens (creating if needed) the named volume's hash database at
// path (without extension; tkrzw appends .tkh), grounded on
// storage/dbm.OpenHash's tkrzw options.
func Open(name, path string, pageSize int, maxPages uint32) (*Volume, error) {
	dbm := tkrzw.NewDBM()
	stat := dbm.Open(fmt.Sprintf("%s.tkh", path), true, map[string]string{
		"update_mode":      "UPDATE_APPENDING",
		"record_comp_mode": "RECORD_COMP_NONE",
		"restore_mode":     "RESTORE_SYNC|RESTORE_NO_SHORTCUTS|RESTORE_WITH_HARDSYNC",
	})
	if !stat.IsOK() {
		return nil, velox.WithStack(stat)
	}
	return &Volume{
		name:     name,
		path:     path,
		pageSize: pageSize,
		openTime: time.Now(),
		dbm:      dbm,
		latches:  map[PageID]*latch.SharedResource{},
		maxPages: maxPages,
	}, nil
}

// Close marks every open page latch as closing (so IsAvailable reports
// false and no new claim can be mistaken for uncontended) and closes
// the underlying database file.
func (v *Volume) Close() error {
	v.latchMu.Lock()
	for _, l := range v.latches {
		l.SetStatus(latch.StatusClosing)
	}
	v.latchMu.Unlock()

	if stat := v.dbm.Close(); !stat.IsOK() {
		return velox.WithStack(stat)
	}
	return nil
}

// pageLatch returns the shared per-page latch for id, creating it on
// first reference. Latches are never removed once created; a page
// keeps its latch for the life of the Volume,
// matching spec.md §4.3's "destroyed when its container is retired."
func (v *Volume) pageLatch(id PageID) *latch.SharedResource {
	v.latchMu.Lock()
	defer v.latchMu.Unlock()
	l, ok := v.latches[id]
	if !ok {
		l = latch.New()
		v.latches[id] = l
	}
	return l
}

// AllocatePage reserves the next page number. Callers use the
// returned PageID with WritePage to materialize the blob.
func (v *Volume) AllocatePage() (PageID, error) {
	v.latchMu.Lock()
	defer v.latchMu.Unlock()
	if v.maxPages > 0 && v.nextPage >= v.maxPages {
		return 0, errors.New("volume: out of pages")
	}
	id := PageID(v.nextPage)
	v.nextPage++
	return id, nil
}

// ReadPage claims the page's latch for read, fetches its bytes, and
// releases the claim before returning.
func (v *Volume) ReadPage(ctx context.Context, owner latch.Owner, id PageID) ([]byte, error) {
	l := v.pageLatch(id)
	if err := l.ReadClaim(ctx, owner, 0); err != nil {
		return nil, err
	}
	defer l.Release(owner)

	b, stat := v.dbm.Get(pageKey(id))
	if err := checkStatus(stat, fmt.Sprintf("page %d", id)); err != nil {
		return nil, err
	}
	return b, nil
}

// WritePage claims the page's latch for write, stores the bytes, bumps
// the page's generation counter, and releases the claim.
func (v *Volume) WritePage(ctx context.Context, owner latch.Owner, id PageID, data []byte) error {
	l := v.pageLatch(id)
	if err := l.WriteClaim(ctx, owner, 0); err != nil {
		return err
	}
	defer func() {
		l.Touch()
		l.Release(owner)
	}()

	if stat := v.dbm.Set(pageKey(id), data, true); !stat.IsOK() {
		return velox.WithStack(stat)
	}
	v.pageCount++
	return nil
}

// Stats populates a management.VolumeInfo snapshot of this volume.
func (v *Volume) Stats() management.VolumeInfo {
	v.latchMu.Lock()
	next := v.nextPage
	v.latchMu.Unlock()
	return management.VolumeInfo{
		Header:            management.NewHeader("volume"),
		Name:              v.name,
		Path:              v.path,
		PageSize:          v.pageSize,
		PageCount:         v.pageCount,
		MaximumPageCount:  int64(v.maxPages),
		NextAvailablePage: int64(next),
		OpenTime:          v.openTime,
	}
}
