// Copyright 2026, Square, Inc.

package mock

import (
	"github.com/square/hpcbuild/proto"
)

// HistoryStore is a mock history.Store.
type HistoryStore struct {
	SaveRunFunc func(proto.RunStatus) error
	RunsFunc    func(limit int) ([]proto.RunStatus, error)
	RunFunc     func(runId string) (proto.RunStatus, error)
	// --
	Saved []proto.RunStatus
}

func (s *HistoryStore) SaveRun(status proto.RunStatus) error {
	s.Saved = append(s.Saved, status)
	if s.SaveRunFunc != nil {
		return s.SaveRunFunc(status)
	}
	return nil
}

func (s *HistoryStore) Runs(limit int) ([]proto.RunStatus, error) {
	if s.RunsFunc != nil {
		return s.RunsFunc(limit)
	}
	return s.Saved, nil
}

func (s *HistoryStore) Run(runId string) (proto.RunStatus, error) {
	if s.RunFunc != nil {
		return s.RunFunc(runId)
	}
	for _, r := range s.Saved {
		if r.RunId == runId {
			return r, nil
		}
	}
	return proto.RunStatus{}, nil
}
