package recorder

import (
	"errors"

	"FibSentinel/internal/model"
)

// ErrNotFound is returned by LatestReport when a code has never been analyzed.
var ErrNotFound = errors.New("no report recorded")

// Recorder persists screen passes for later lookup.
type Recorder interface {
	RecordBoards(boards []model.Board) error
	RecordPass(pass *model.Pass) error
	RecordHistory(series []model.Series) error
	LatestReport(code string) (*model.Report, error)
	Close() error
}
