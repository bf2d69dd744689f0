package management

import (
	"bytes"
	"testing"
	"time"

	"github.com/bxcodec/faker/v4"
	goccy "github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func sampleSnapshot() Snapshot {
	now := time.Now()
	return Snapshot{
		Header: NewHeader("engine"),
		BufferPools: []BufferPoolInfo{
			{Header: NewHeader("bufferpool"), BufferSize: 16384, BufferCount: 256, HitCount: 10, MissCount: 2},
		},
		Volumes: []VolumeInfo{
			{Header: NewHeader("volume"), Name: "main", Path: "/tmp/main.tkh", PageSize: 16384, PageCount: 100, OpenTime: now},
		},
		Trees: []TreeInfo{
			{Header: NewHeader("volume"), VolumeName: "main", Name: "orders", Depth: 3, FetchCounter: 5},
		},
		Tasks: []TaskStatus{
			{Header: NewHeader("engine"), TaskID: 1, TaskName: "writeback", State: "RUNNING", StartTime: now},
		},
		Journal:  JournalInfo{Header: NewHeader("journal"), CurrentGeneration: 7},
		Recovery: RecoveryInfo{Header: NewHeader("recovery"), TransactionsRecovered: 3},
	}
}

func TestSnapshotMarshalJSON(t *testing.T) {
	s := sampleSnapshot()
	b, err := s.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var decoded Snapshot
	if err := goccy.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(s, decoded, cmpopts.IgnoreFields(Header{}, "AcquisitionTime")); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

// TestSnapshotRandomTree fills a TreeInfo with random data the way the
// teacher's storage tests fake whole persisted objects, then checks it
// survives a JSON round-trip and renders without panicking.
func TestSnapshotRandomTree(t *testing.T) {
	var tree TreeInfo
	if err := faker.FakeData(&tree); err != nil {
		t.Fatal(err)
	}
	tree.Header = NewHeader("volume")

	s := Snapshot{Header: NewHeader("engine"), Trees: []TreeInfo{tree}}
	b, err := s.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var decoded Snapshot
	if err := goccy.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(s, decoded, cmpopts.IgnoreFields(Header{}, "AcquisitionTime")); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	s.Fprint(&buf)
	if buf.Len() == 0 {
		t.Fatal("expected non-empty Fprint output")
	}
}

func TestSnapshotFprint(t *testing.T) {
	s := sampleSnapshot()
	var buf bytes.Buffer
	s.Fprint(&buf)
	out := buf.String()
	for _, want := range []string{"Buffer pools", "Volumes", "Trees", "Tasks", "Journal", "Recovery", "main", "orders", "writeback"} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}
