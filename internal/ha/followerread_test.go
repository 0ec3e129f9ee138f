package ha

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

// fakeExecutor records every ExecContext query it receives and optionally
// fails on a named one.
type fakeExecutor struct {
	queries []string
	failOn  string
}

func (f *fakeExecutor) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.queries = append(f.queries, query)
	if f.failOn != "" && query == f.failOn {
		return nil, errors.New("boom")
	}
	return nil, nil
}

func TestApplyFollowerRead_NoOp(t *testing.T) {
	ex := &fakeExecutor{}
	if err := applyFollowerRead(context.Background(), ex, FollowerReadNoOp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ex.queries) != 0 {
		t.Fatalf("expected no statements issued, got %v", ex.queries)
	}
}

func TestApplyFollowerRead_Disable(t *testing.T) {
	ex := &fakeExecutor{}
	if err := applyFollowerRead(context.Background(), ex, FollowerReadDisable); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// original_source/src/polardbx_connection.cpp's case 0 issues only
	// SET_FOLLOWER_READ_FALSE — it does not also clear consistent-read.
	want := []string{setFollowerReadFalse}
	if len(ex.queries) != len(want) {
		t.Fatalf("got %v, want %v", ex.queries, want)
	}
	for i := range want {
		if ex.queries[i] != want[i] {
			t.Fatalf("got %v, want %v", ex.queries, want)
		}
	}
}

func TestApplyFollowerRead_Enable(t *testing.T) {
	ex := &fakeExecutor{}
	if err := applyFollowerRead(context.Background(), ex, FollowerReadEnable); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{setFollowerReadTrue, setReadWeight, enableConsistentReadFalse}
	if len(ex.queries) != len(want) {
		t.Fatalf("got %v, want %v", ex.queries, want)
	}
}

func TestApplyFollowerRead_EnableConsistent(t *testing.T) {
	ex := &fakeExecutor{}
	if err := applyFollowerRead(context.Background(), ex, FollowerReadEnableConsistent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{setFollowerReadTrue, setReadWeight, enableConsistentReadTrue}
	if len(ex.queries) != len(want) {
		t.Fatalf("got %v, want %v", ex.queries, want)
	}
}

func TestApplyFollowerRead_InvalidState(t *testing.T) {
	ex := &fakeExecutor{}
	err := applyFollowerRead(context.Background(), ex, 9)
	if !errors.Is(err, ErrInvalidFollowerReadState) {
		t.Fatalf("expected ErrInvalidFollowerReadState, got %v", err)
	}
}

func TestApplyFollowerRead_StopsOnFirstError(t *testing.T) {
	ex := &fakeExecutor{failOn: setFollowerReadTrue}
	err := applyFollowerRead(context.Background(), ex, FollowerReadEnable)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if len(ex.queries) != 1 {
		t.Fatalf("expected exactly one statement attempted, got %v", ex.queries)
	}
}
