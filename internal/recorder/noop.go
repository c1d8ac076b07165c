package recorder

import "FibSentinel/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordBoards(_ []model.Board) error           { return nil }
func (n *NoopRecorder) RecordPass(_ *model.Pass) error               { return nil }
func (n *NoopRecorder) RecordHistory(_ []model.Series) error         { return nil }
func (n *NoopRecorder) LatestReport(_ string) (*model.Report, error) { return nil, ErrNotFound }
func (n *NoopRecorder) Close() error                                 { return nil }
