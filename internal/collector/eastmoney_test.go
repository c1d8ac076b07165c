package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"

	"FibSentinel/internal/model"
)

func newTestFetcher(url string) *EastMoneyFetcher {
	return &EastMoneyFetcher{
		ListURL:  url + "/api/qt/clist/get",
		KLineURL: url + "/api/qt/stock/kline/get",
		Attempts: 3,
		Backoff:  time.Millisecond,
		Client:   &http.Client{Timeout: 2 * time.Second},
	}
}

func TestSecID(t *testing.T) {
	tests := map[string]string{
		"600519":  "1.600519",
		"688001":  "1.688001",
		"000001":  "0.000001",
		"300750":  "0.300750",
		" 603001": "1.603001",
	}
	for code, want := range tests {
		assert.Equal(t, SecID(code), want)
	}
}

func TestParseKLines(t *testing.T) {
	body := []byte(`{"data":{"code":"600519","klines":[
		"2024-01-02,1700.00,1685.01,1710.50,1680.00,31000",
		"2024-01-03,1685.00,1694.00,1699.99,1675.30,28000"]}}`)

	bars, err := ParseKLines(body)
	assert.NoError(t, err)
	want := []model.Bar{
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1700, Close: 1685.01, High: 1710.5, Low: 1680, Volume: 31000},
		{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Open: 1685, Close: 1694, High: 1699.99, Low: 1675.3, Volume: 28000},
	}
	if diff := cmp.Diff(want, bars); diff != "" {
		t.Errorf("unexpected bars (-want +got):\n%s", diff)
	}
}

func TestParseKLines_Errors(t *testing.T) {
	_, err := ParseKLines([]byte(`{"data":null}`))
	assert.True(t, errors.Is(err, ErrNoData))

	_, err = ParseKLines([]byte(`{"data":{"klines":[]}}`))
	assert.True(t, errors.Is(err, ErrNoData))

	_, err = ParseKLines([]byte(`{"data":{"klines":["2024-13-45,1,2,3,4,5"]}}`))
	assert.Error(t, err)

	_, err = ParseKLines([]byte(`{"data":{"klines":["2024-01-02,1,x,3,4,5"]}}`))
	assert.Error(t, err)
}

func TestFetchDailyBars_AdjustmentParams(t *testing.T) {
	var gotFqt, gotSecID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFqt = r.URL.Query().Get("fqt")
		gotSecID = r.URL.Query().Get("secid")
		fmt.Fprint(w, `{"data":{"klines":["2024-01-02,10,11,12,9,100"]}}`)
	}))
	defer srv.Close()
	f := newTestFetcher(srv.URL)

	s, err := f.FetchDailyBars(context.Background(), "600001", model.Backward, 250)
	assert.NoError(t, err)
	assert.Equal(t, gotFqt, "2")
	assert.Equal(t, gotSecID, "1.600001")
	assert.Equal(t, s.Adjustment, model.Backward)
	assert.Equal(t, len(s.Bars), 1)

	_, err = f.FetchDailyBars(context.Background(), "000001", model.Forward, 250)
	assert.NoError(t, err)
	assert.Equal(t, gotFqt, "1")
	assert.Equal(t, gotSecID, "0.000001")

	_, err = f.FetchDailyBars(context.Background(), "000001", model.Adjustment("none"), 250)
	assert.Error(t, err)
}

func TestGet_RetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"data":{"klines":["2024-01-02,10,11,12,9,100"]}}`)
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv.URL).FetchDailyBars(context.Background(), "600001", model.Forward, 10)
	assert.NoError(t, err)
	assert.Equal(t, hits.Load(), int32(3))
}

func TestGet_GivesUpAfterAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `not json`)
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv.URL).FetchDailyBars(context.Background(), "600001", model.Forward, 10)
	assert.Error(t, err)
	assert.Equal(t, hits.Load(), int32(3))
}

func TestFetchSpot_Pages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Query().Get("fs"), spotMarkets)
		if r.URL.Query().Get("pn") != "1" {
			fmt.Fprint(w, `{"data":null}`)
			return
		}
		fmt.Fprint(w, `{"data":{"total":2,"diff":[
			{"f2":12.5,"f12":"603001","f14":"智能装备","f21":3456789000},
			{"f2":"-","f12":"000002","f14":"停牌股","f21":"-"}]}}`)
	}))
	defer srv.Close()

	quotes, err := newTestFetcher(srv.URL).FetchSpot(context.Background())
	assert.NoError(t, err)
	want := []model.Quote{
		{Code: "603001", Name: "智能装备", LastPrice: 12.5, FloatMarketCap: 3456789000},
		{Code: "000002", Name: "停牌股"},
	}
	if diff := cmp.Diff(want, quotes); diff != "" {
		t.Errorf("unexpected quotes (-want +got):\n%s", diff)
	}
}

func TestFetchSpot_ServerCapsPageSize(t *testing.T) {
	rows := []string{
		`{"f2":1,"f12":"600001","f14":"a"}`,
		`{"f2":2,"f12":"600002","f14":"b"}`,
		`{"f2":3,"f12":"600003","f14":"c"}`,
	}
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		pn, err := strconv.Atoi(r.URL.Query().Get("pn"))
		assert.NoError(t, err)
		start := (pn - 1) * 2
		if start >= len(rows) {
			fmt.Fprint(w, `{"data":{"total":3,"diff":[]}}`)
			return
		}
		end := min(start+2, len(rows))
		fmt.Fprintf(w, `{"data":{"total":3,"diff":[%s]}}`, strings.Join(rows[start:end], ","))
	}))
	defer srv.Close()

	quotes, err := newTestFetcher(srv.URL).FetchSpot(context.Background())
	assert.NoError(t, err)
	var codes []string
	for _, q := range quotes {
		codes = append(codes, q.Code)
	}
	assert.Equal(t, codes, []string{"600001", "600002", "600003"})
	assert.Equal(t, calls.Load(), int32(2))
}

func TestFetchSpot_ShortPageWithoutTotal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"data":{"diff":[{"f2":1,"f12":"600001","f14":"a"}]}}`)
	}))
	defer srv.Close()

	quotes, err := newTestFetcher(srv.URL).FetchSpot(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, len(quotes), 1)
	assert.Equal(t, calls.Load(), int32(1))
}

func TestFetchBoardsAndMembers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("fs") {
		case conceptBoards:
			fmt.Fprint(w, `{"data":{"total":2,"diff":[{"f12":"BK0800","f14":"人工智能"},{"f12":"","f14":"?"}]}}`)
		case "b:BK0800":
			fmt.Fprint(w, `{"data":{"total":2,"diff":[{"f12":"603001","f14":"a"},{"f12":"000009","f14":"b"}]}}`)
		default:
			fmt.Fprint(w, `{"data":null}`)
		}
	}))
	defer srv.Close()
	f := newTestFetcher(srv.URL)

	boards, err := f.FetchBoards(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, boards, []model.Board{{Code: "BK0800", Name: "人工智能"}})

	members, err := f.FetchBoardMembers(context.Background(), "BK0800")
	assert.NoError(t, err)
	assert.Equal(t, members, []string{"603001", "000009"})

	_, err = f.FetchBoardMembers(context.Background(), "0800")
	assert.True(t, errors.Is(err, ErrInvalidBoard))
}
