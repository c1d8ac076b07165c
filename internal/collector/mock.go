package collector

import (
	"context"
	"fmt"
	"sync"

	"FibSentinel/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Quotes  []model.Quote
	Boards  []model.Board
	Members map[string][]string
	// Series is keyed by code, then adjustment.
	Series map[string]map[model.Adjustment]model.Series
	// BarErrs fails FetchDailyBars for a code and adjustment.
	BarErrs map[string]map[model.Adjustment]error
	SpotErr error

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) count(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[key]++
}

// Calls returns how many times a fetch keyed "spot", "boards", "members/BK..."
// or "<code>/<adj>" ran.
func (m *MockFetcher) Calls(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

func (m *MockFetcher) FetchSpot(_ context.Context) ([]model.Quote, error) {
	m.count("spot")
	if m.SpotErr != nil {
		return nil, m.SpotErr
	}
	return m.Quotes, nil
}

func (m *MockFetcher) FetchBoards(_ context.Context) ([]model.Board, error) {
	m.count("boards")
	return m.Boards, nil
}

func (m *MockFetcher) FetchBoardMembers(_ context.Context, boardCode string) ([]string, error) {
	m.count("members/" + boardCode)
	codes, ok := m.Members[boardCode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBoard, boardCode)
	}
	return codes, nil
}

func (m *MockFetcher) FetchDailyBars(ctx context.Context, code string, adj model.Adjustment, _ int) (model.Series, error) {
	m.count(code + "/" + string(adj))
	if err := ctx.Err(); err != nil {
		return model.Series{}, err
	}
	if err := m.BarErrs[code][adj]; err != nil {
		return model.Series{}, err
	}
	s, ok := m.Series[code][adj]
	if !ok {
		return model.Series{}, fmt.Errorf("%s %s: %w", code, adj, ErrNoData)
	}
	return s, nil
}
