package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProgramHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, src := range []string{"10 PRINT 1", "10 PRINT 2", "10 PRINT 3"} {
		rec := &ProgramRecord{
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Source:    src,
			Lines:     1,
			Size:      12,
			Base:      0x0801,
			End:       0x080D,
			AutoRun:   i == 2,
		}
		if err := s.SaveProgram(ctx, rec); err != nil {
			t.Fatalf("SaveProgram failed: %v", err)
		}
		if rec.ID == "" {
			t.Fatal("SaveProgram should assign an id")
		}
	}

	recent, err := s.RecentPrograms(ctx, 2)
	if err != nil {
		t.Fatalf("RecentPrograms failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 programs, got %d", len(recent))
	}
	if recent[0].Source != "10 PRINT 3" || !recent[0].AutoRun || recent[1].Source != "10 PRINT 2" {
		t.Errorf("Unexpected order %+v", recent)
	}
	if recent[0].End != 0x080D || recent[0].Base != 0x0801 {
		t.Errorf("Addresses lost: %+v", recent[0])
	}
	if !recent[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("CreatedAt = %v", recent[0].CreatedAt)
	}

	one, err := s.Program(ctx, recent[1].ID)
	if err != nil || one.Source != "10 PRINT 2" {
		t.Errorf("Program = %+v, %v", one, err)
	}
	if _, err := s.Program(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestToolCallsArePruned(t *testing.T) {
	s := openTestStore(t)
	s.maxToolCalls = 3
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		call := &ToolCall{Tool: "read_memory", OK: i%2 == 0, Duration: 15 * time.Millisecond}
		if !call.OK {
			call.Error = "HTTP Error 500"
		}
		if err := s.RecordToolCall(ctx, call); err != nil {
			t.Fatalf("RecordToolCall failed: %v", err)
		}
	}

	calls, err := s.RecentToolCalls(ctx, 10)
	if err != nil {
		t.Fatalf("RecentToolCalls failed: %v", err)
	}
	if len(calls) != 3 {
		t.Fatalf("Expected 3 calls after pruning, got %d", len(calls))
	}
	if !calls[0].OK || calls[1].OK || calls[1].Error != "HTTP Error 500" {
		t.Errorf("Unexpected calls %+v", calls)
	}
	if calls[0].Duration != 15*time.Millisecond {
		t.Errorf("Duration = %v", calls[0].Duration)
	}
}
