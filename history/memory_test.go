// Copyright 2026, Square, Inc.

package history

import (
	"testing"

	"github.com/square/hpcbuild/proto"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()

	for _, id := range []string{"run1", "run2", "run3"} {
		err := s.SaveRun(proto.RunStatus{RunId: id, State: proto.STATE_COMPLETE})
		if err != nil {
			t.Fatal(err)
		}
	}

	// Newest first.
	runs, err := s.Runs(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, expected 3", len(runs))
	}
	if runs[0].RunId != "run3" || runs[2].RunId != "run1" {
		t.Errorf("unexpected order: %s, %s, %s", runs[0].RunId, runs[1].RunId, runs[2].RunId)
	}

	// Limit.
	runs, err = s.Runs(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].RunId != "run3" {
		t.Errorf("unexpected limited runs: %+v", runs)
	}

	// Lookup by id.
	run, err := s.Run("run2")
	if err != nil {
		t.Fatal(err)
	}
	if run.RunId != "run2" {
		t.Errorf("got run %s, expected run2", run.RunId)
	}

	if _, err := s.Run("nope"); err == nil {
		t.Error("got nil error for missing run, expected one")
	}
}
