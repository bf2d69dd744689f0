// Package management implements the Management contract (component
// C5): read-only DTOs describing externally observable structural and
// operational state (buffer pools, volumes, trees, background tasks,
// journal, recovery). Nothing here mutates engine state; values are
// populated by the engine façade from live bufferpool/volume/txn
// state and handed to callers as plain snapshots.
package management

import (
	"io"
	"time"

	goccy "github.com/goccy/go-json"
	"github.com/rodaine/table"
)

// Header is embedded in every DTO in place of the source material's
// acquisition-time base class: composition over subtype dispatch, per
// spec.md §9's design note.
type Header struct {
	AcquisitionTime time.Time
	Source          string
}

// NewHeader stamps a Header for a DTO being populated right now from
// the named source component.
func NewHeader(source string) Header {
	return Header{AcquisitionTime: time.Now(), Source: source}
}

// BufferPoolInfo describes one buffer pool's size and traffic
// counters.
type BufferPoolInfo struct {
	Header
	BufferSize     int
	BufferCount    int
	DirtyCount     int
	HitCount       int64
	MissCount      int64
	NewCount       int64
	EvictCount     int64
	WriteCount     int64
	AvailableCount int
}

// VolumeInfo describes one open volume file.
type VolumeInfo struct {
	Header
	Name              string
	Path              string
	PageSize          int
	PageCount         int64
	MaximumPageCount  int64
	NextAvailablePage int64
	OpenTime          time.Time
}

// TreeInfo describes one B-link tree within a volume.
type TreeInfo struct {
	Header
	VolumeName      string
	Name            string
	Depth           int
	FetchCounter    int64
	TraverseCounter int64
	StoreCounter    int64
	RemoveCounter   int64
}

// TaskStatus describes one background maintenance task (buffer pool
// writeback sweep, transaction index cleanup sweep, and the like).
type TaskStatus struct {
	Header
	TaskID        int64
	TaskName      string
	State         string
	StartTime     time.Time
	FinishTime    time.Time
	Description   string
	LastException string
}

// JournalInfo describes the write-ahead journal's current extent.
type JournalInfo struct {
	Header
	CurrentGeneration int64
	CurrentAddress    int64
	BaseAddress       int64
	BlockSize         int64
	PageMapSize       int
	WriteCount        int64
}

// RecoveryInfo describes the outcome of the most recent crash recovery
// pass, if any has run in this process.
type RecoveryInfo struct {
	Header
	JournalCreatedTime    time.Time
	KeystoneAddress       int64
	TransactionsRecovered int64
	AppliedTransactions   int64
	PagesRecovered        int64
	ErrorCount            int64
}

// Snapshot aggregates one reading of every management DTO, as returned
// by Engine.Snapshot().
type Snapshot struct {
	Header
	BufferPools []BufferPoolInfo
	Volumes     []VolumeInfo
	Trees       []TreeInfo
	Tasks       []TaskStatus
	Journal     JournalInfo
	Recovery    RecoveryInfo
}

// MarshalJSON renders the snapshot for operator-facing tooling or a
// durable audit record.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot
	return goccy.Marshal(alias(s))
}

// Fprint renders a human-readable multi-table dump of the snapshot.
func (s Snapshot) Fprint(w io.Writer) {
	io.WriteString(w, "Buffer pools\n")
	bp := table.New("Source", "Buffer size", "Buffers", "Dirty", "Available", "Hits", "Misses", "Evicts").WithWriter(w)
	for _, b := range s.BufferPools {
		bp.AddRow(b.Source, b.BufferSize, b.BufferCount, b.DirtyCount, b.AvailableCount, b.HitCount, b.MissCount, b.EvictCount)
	}
	bp.Print()

	io.WriteString(w, "\nVolumes\n")
	vt := table.New("Name", "Path", "Page size", "Pages", "Max pages", "Next page").WithWriter(w)
	for _, v := range s.Volumes {
		vt.AddRow(v.Name, v.Path, v.PageSize, v.PageCount, v.MaximumPageCount, v.NextAvailablePage)
	}
	vt.Print()

	io.WriteString(w, "\nTrees\n")
	tt := table.New("Volume", "Tree", "Depth", "Fetches", "Traversals", "Stores", "Removes").WithWriter(w)
	for _, tr := range s.Trees {
		tt.AddRow(tr.VolumeName, tr.Name, tr.Depth, tr.FetchCounter, tr.TraverseCounter, tr.StoreCounter, tr.RemoveCounter)
	}
	tt.Print()

	io.WriteString(w, "\nTasks\n")
	tk := table.New("ID", "Name", "State", "Started", "Finished", "Error").WithWriter(w)
	for _, ts := range s.Tasks {
		tk.AddRow(ts.TaskID, ts.TaskName, ts.State, ts.StartTime.Format(time.RFC3339), ts.FinishTime.Format(time.RFC3339), ts.LastException)
	}
	tk.Print()

	io.WriteString(w, "\nJournal\n")
	jt := table.New("Generation", "Address", "Base", "Block size", "Page map", "Writes").WithWriter(w)
	jt.AddRow(s.Journal.CurrentGeneration, s.Journal.CurrentAddress, s.Journal.BaseAddress, s.Journal.BlockSize, s.Journal.PageMapSize, s.Journal.WriteCount)
	jt.Print()

	io.WriteString(w, "\nRecovery\n")
	rt := table.New("Journal created", "Keystone", "Recovered", "Applied", "Pages", "Errors").WithWriter(w)
	rt.AddRow(s.Recovery.JournalCreatedTime.Format(time.RFC3339), s.Recovery.KeystoneAddress, s.Recovery.TransactionsRecovered, s.Recovery.AppliedTransactions, s.Recovery.PagesRecovered, s.Recovery.ErrorCount)
	rt.Print()
}
