package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nnpdf/pinefarm/internal/testutil"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleRun(dataset string, theory int) *Run {
	return &Run{
		Dataset:   dataset,
		TheoryID:  theory,
		Provider:  "positivity",
		PDF:       "NNPDF40_nnlo_as_01180",
		Dest:      "/results/" + dataset,
		Timestamp: "20240301120000",
	}
}

func TestCreateRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ids := testutil.NewSequentialIDs("")

	run := sampleRun("NNPDF_POS_UPQ", 400)
	if err := s.CreateRun(ctx, ids, run, t0); err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	if run.ID != "run-0001" || run.Seq != 1 {
		t.Errorf("got id=%q seq=%d", run.ID, run.Seq)
	}
	if run.Status != StatusStarted {
		t.Errorf("status = %q, want %q", run.Status, StatusStarted)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.Dataset != run.Dataset || got.TheoryID != 400 || got.Provider != "positivity" {
		t.Errorf("GetRun() = %+v", got)
	}
	if !got.StartedAt.Equal(t0) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, t0)
	}
	if len(got.Versions) != 0 {
		t.Errorf("Versions = %v, want empty", got.Versions)
	}
}

func TestCreateRun_DefaultUUID(t *testing.T) {
	s := createTestStore(t)
	run := sampleRun("ZJ", 1)
	if err := s.CreateRun(context.Background(), nil, run, t0); err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		t.Errorf("run ID %q is not a UUID: %v", run.ID, err)
	}
}

func TestUpdateStatusAndVersions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run := sampleRun("ZJ", 1)
	if err := s.CreateRun(ctx, testutil.NewSequentialIDs(""), run, t0); err != nil {
		t.Fatal(err)
	}

	later := t0.Add(time.Hour)
	if err := s.UpdateStatus(ctx, run.ID, StatusDone, "/results/ZJ.pineappl.lz4", "", later); err != nil {
		t.Fatalf("UpdateStatus() failed: %v", err)
	}
	if err := s.SetVersions(ctx, run.ID, map[string]string{"mg5amc_version": "3.5.1", "pinefarm": "v0.1.0"}); err != nil {
		t.Fatalf("SetVersions() failed: %v", err)
	}
	// Replacing drops stale keys.
	if err := s.SetVersions(ctx, run.ID, map[string]string{"pinefarm": "v0.2.0"}); err != nil {
		t.Fatalf("SetVersions() failed: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusDone || got.Grid != "/results/ZJ.pineappl.lz4" {
		t.Errorf("got status=%q grid=%q", got.Status, got.Grid)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
	}
	if len(got.Versions) != 1 || got.Versions["pinefarm"] != "v0.2.0" {
		t.Errorf("Versions = %v", got.Versions)
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	s := createTestStore(t)
	err := s.UpdateStatus(context.Background(), "missing", StatusFailed, "", "boom", t0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateStatus() error = %v, want ErrNotFound", err)
	}
	_, err = s.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}
}

func TestListRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ids := testutil.NewSequentialIDs("r")

	for _, r := range []*Run{sampleRun("A", 1), sampleRun("B", 1), sampleRun("A", 2), sampleRun("A", 1)} {
		if err := s.CreateRun(ctx, ids, r, t0); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListRuns(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len = %d, want 4", len(all))
	}
	for i, r := range all {
		if r.Seq != int64(i+1) {
			t.Errorf("run %d has seq %d", i, r.Seq)
		}
	}

	one := 1
	filtered, err := s.ListRuns(ctx, ListFilter{Dataset: "A", TheoryID: &one})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 2 || filtered[0].ID != "r-0001" || filtered[1].ID != "r-0004" {
		t.Errorf("filtered = %v", filtered)
	}

	limited, err := s.ListRuns(ctx, ListFilter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d runs", len(limited))
	}
}

func TestLatestTimestamp(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ids := testutil.NewSequentialIDs("")

	ts, err := s.LatestTimestamp(ctx, "ZJ", 1)
	if err != nil || ts != "" {
		t.Fatalf("LatestTimestamp() = %q, %v", ts, err)
	}

	for i, stamp := range []string{"20240101000000", "20240202000000", "20240303000000"} {
		r := sampleRun("ZJ", 1)
		r.Timestamp = stamp
		if err := s.CreateRun(ctx, ids, r, t0); err != nil {
			t.Fatal(err)
		}
		if i < 2 {
			if err := s.UpdateStatus(ctx, r.ID, StatusDone, "", "", t0); err != nil {
				t.Fatal(err)
			}
		}
	}

	ts, err = s.LatestTimestamp(ctx, "ZJ", 1)
	if err != nil {
		t.Fatal(err)
	}
	if ts != "20240202000000" {
		t.Errorf("LatestTimestamp() = %q, want the last finished run", ts)
	}
}
