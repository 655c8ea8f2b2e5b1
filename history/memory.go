// Copyright 2026, Square, Inc.

package history

import (
	"fmt"
	"sync"

	"github.com/square/hpcbuild/proto"
)

type memoryStore struct {
	runs []proto.RunStatus // newest first
	*sync.RWMutex
}

// NewMemoryStore returns an in-process Store. It is the default when no
// history DSN is configured.
func NewMemoryStore() Store {
	return &memoryStore{
		runs:    []proto.RunStatus{},
		RWMutex: &sync.RWMutex{},
	}
}

func (s *memoryStore) SaveRun(status proto.RunStatus) error {
	s.Lock()
	defer s.Unlock()
	s.runs = append([]proto.RunStatus{status}, s.runs...)
	return nil
}

func (s *memoryStore) Runs(limit int) ([]proto.RunStatus, error) {
	s.RLock()
	defer s.RUnlock()
	n := len(s.runs)
	if limit > 0 && limit < n {
		n = limit
	}
	runs := make([]proto.RunStatus, n)
	copy(runs, s.runs[:n])
	return runs, nil
}

func (s *memoryStore) Run(runId string) (proto.RunStatus, error) {
	s.RLock()
	defer s.RUnlock()
	for _, r := range s.runs {
		if r.RunId == runId {
			return r, nil
		}
	}
	return proto.RunStatus{}, fmt.Errorf("run %s not found", runId)
}
