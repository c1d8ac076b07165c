package collector

import (
	"context"
	"errors"

	"FibSentinel/internal/model"
)

var (
	// ErrNoData is returned when the provider answers without usable rows.
	ErrNoData = errors.New("no data returned")
	// ErrInvalidBoard is returned for board codes not of the form BKxxxx.
	ErrInvalidBoard = errors.New("invalid board code")
)

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	FetchSpot(ctx context.Context) ([]model.Quote, error)
	FetchDailyBars(ctx context.Context, code string, adj model.Adjustment, days int) (model.Series, error)
	FetchBoards(ctx context.Context) ([]model.Board, error)
	FetchBoardMembers(ctx context.Context, boardCode string) ([]string, error)
	Name() string
}
