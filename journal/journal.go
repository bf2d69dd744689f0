// Package journal implements the write-ahead journal described in
// spec.md §5.3: an append-only tkrzw tree keyed by LSN. No redo/undo
// record format is specified (out of scope per spec.md §1); callers
// are responsible for record contents.
package journal

import (
	"encoding/binary"
	"fmt"
	"iter"
	"os"
	"sync"
	"sync/atomic"

	"github.com/estraier/tkrzw-go"
	"github.com/pkg/errors"

	"github.com/veloxdb/veloxdb/management"
	"github.com/veloxdb/veloxdb/velox"
)

func checkStatus(stat *tkrzw.Status, notFoundMsg string) error {
	if stat.GetCode() == tkrzw.StatusNotFoundError {
		return errors.Wrapf(os.ErrNotExist, "%s", notFoundMsg)
	}
	if !stat.IsOK() {
		return velox.WithStack(stat)
	}
	return nil
}

func lsnKey(lsn uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], lsn)
	return string(b[:])
}

// Journal is an append-only log of opaque records, addressed by a
// monotonically increasing LSN grounded on storage.Event.createKey's
// timestamp-then-counter key construction (here the counter alone
// serves as the ordering key, via velox.Increment).
type Journal struct {
	mu       sync.Mutex
	dbm      *tkrzw.DBM
	lastLSN  uint64
	writeCnt atomic.Int64
	baseLSN  uint64
}

// Open opens (creating if needed) the journal's tree database at path
// (without extension; tkrzw appends .tkt).
func Open(path string) (*Journal, error) {
	dbm := tkrzw.NewDBM()
	stat := dbm.Open(fmt.Sprintf("%s.tkt", path), true, map[string]string{
		"page_update_mode": "PAGE_UPDATE_WRITE",
		"record_comp_mode": "RECORD_COMP_NONE",
		"key_comparator":   "LexicalKeyComparator",
	})
	if !stat.IsOK() {
		return nil, velox.WithStack(stat)
	}
	return &Journal{dbm: dbm}, nil
}

// Close closes the underlying database file.
func (j *Journal) Close() error {
	if stat := j.dbm.Close(); !stat.IsOK() {
		return velox.WithStack(stat)
	}
	return nil
}

// Append stores record under a freshly allocated LSN and returns it.
func (j *Journal) Append(record []byte) (uint64, error) {
	lsn := velox.Increment(&j.lastLSN)
	j.mu.Lock()
	defer j.mu.Unlock()
	if stat := j.dbm.Set(lsnKey(lsn), record, false); !stat.IsOK() {
		return 0, velox.WithStack(stat)
	}
	j.writeCnt.Add(1)
	return lsn, nil
}

// Since iterates every record with LSN > lsn, in ascending order,
// grounded on dbm.Tree.SubEach's jump-then-walk iterator style.
func (j *Journal) Since(lsn uint64) iter.Seq2[uint64, []byte] {
	return func(yield func(uint64, []byte) bool) {
		j.mu.Lock()
		defer j.mu.Unlock()
		it := j.dbm.MakeIterator()
		defer it.Destruct()
		it.Jump(lsnKey(lsn + 1))
		for {
			key, value, stat := it.Get()
			if stat.GetCode() == tkrzw.StatusNotFoundError {
				return
			}
			if !stat.IsOK() {
				return
			}
			if len(key) != 8 {
				return
			}
			if !yield(binary.BigEndian.Uint64(key), value) {
				return
			}
			it.Next()
		}
	}
}

// Truncate records that every entry with LSN <= lsn is no longer
// needed for recovery. Journal keeps no separate retention structure
// in this implementation; Truncate only advances the reported base
// for Stats, since durable removal of old segments is part of the
// on-disk wire format spec.md §1 puts out of scope.
func (j *Journal) Truncate(lsn uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if lsn > j.baseLSN {
		j.baseLSN = lsn
	}
}

// Stats populates a management.JournalInfo snapshot.
func (j *Journal) Stats() management.JournalInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	return management.JournalInfo{
		Header:            management.NewHeader("journal"),
		CurrentGeneration: int64(atomic.LoadUint64(&j.lastLSN)),
		CurrentAddress:    int64(j.lastLSN),
		BaseAddress:       int64(j.baseLSN),
		WriteCount:        j.writeCnt.Load(),
	}
}
