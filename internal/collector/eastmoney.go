package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"FibSentinel/internal/config"
	"FibSentinel/internal/model"
)

const (
	listPageSize = 500
	maxKLines    = 1000

	// A-share main boards, ChiNext and STAR market.
	spotMarkets = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23"
	// Concept boards.
	conceptBoards = "m:90+t:3"

	// f2 last price, f12 code, f14 name, f21 float market cap (yuan).
	spotFields  = "f2,f12,f14,f21"
	briefFields = "f12,f14"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	referer   = "https://quote.eastmoney.com/"
)

// EastMoneyFetcher implements Fetcher using the eastmoney push2 quote API.
type EastMoneyFetcher struct {
	ListURL  string
	KLineURL string
	Attempts int
	Backoff  time.Duration
	Client   *http.Client
}

// NewEastMoneyFetcher creates a fetcher with optional proxy support.
func NewEastMoneyFetcher(ds config.DataSource, proxyURL string) *EastMoneyFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	attempts := ds.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &EastMoneyFetcher{
		ListURL:  ds.ListURL,
		KLineURL: ds.KLineURL,
		Attempts: attempts,
		Backoff:  ds.Backoff(),
		Client: &http.Client{
			Timeout:   ds.Timeout(),
			Transport: transport,
		},
	}
}

func (f *EastMoneyFetcher) Name() string { return "eastmoney" }

// SecID maps a 6-digit code to the eastmoney security id: 1.xxxxxx for
// Shanghai listings, 0.xxxxxx for Shenzhen.
func SecID(code string) string {
	code = strings.TrimSpace(code)
	if code != "" && (code[0] == '6' || code[0] == '5' || code[0] == '9') {
		return "1." + code
	}
	return "0." + code
}

// fqt maps an adjustment to the eastmoney fqt parameter.
func fqt(adj model.Adjustment) (string, error) {
	switch adj {
	case model.Forward:
		return "1", nil
	case model.Backward:
		return "2", nil
	default:
		return "", fmt.Errorf("unknown adjustment %q", adj)
	}
}

// get performs a GET with bounded attempts and a fixed backoff between them.
func (f *EastMoneyFetcher) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u := endpoint + "?" + params.Encode()
	logger := zerolog.Ctx(ctx)

	var lastErr error
	for attempt := 1; attempt <= f.Attempts; attempt++ {
		if attempt > 1 {
			logger.Warn().Msgf("eastmoney retry %d/%d after %v: %v", attempt, f.Attempts, f.Backoff, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.Backoff):
			}
		}

		body, err := f.do(ctx, u)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", f.Attempts, lastErr)
}

func (f *EastMoneyFetcher) do(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("eastmoney fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("eastmoney read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eastmoney: status %d, body: %s", resp.StatusCode, truncate(body, 200))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("eastmoney: invalid json: %s", truncate(body, 200))
	}
	return body, nil
}

// list pages through a clist endpoint and hands every diff row to fn.
func (f *EastMoneyFetcher) list(ctx context.Context, fs, fields string, fn func(gjson.Result)) error {
	seen := 0
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("pn", strconv.Itoa(page))
		params.Set("pz", strconv.Itoa(listPageSize))
		params.Set("po", "1")
		params.Set("np", "1")
		params.Set("fltt", "2")
		params.Set("invt", "2")
		params.Set("fid", "f12")
		params.Set("fs", fs)
		params.Set("fields", fields)

		body, err := f.get(ctx, f.ListURL, params)
		if err != nil {
			return err
		}
		diff := gjson.GetBytes(body, "data.diff")
		if !diff.Exists() {
			break
		}
		rows := diff.Array()
		for _, row := range rows {
			fn(row)
		}
		seen += len(rows)
		if len(rows) == 0 {
			break
		}
		// The server may cap pz below listPageSize, so a short page only
		// ends the listing when no total is reported.
		if total := gjson.GetBytes(body, "data.total"); total.Exists() {
			if seen >= int(total.Int()) {
				break
			}
		} else if len(rows) < listPageSize {
			break
		}
	}
	return nil
}

// FetchSpot returns the spot snapshot of all A-share listings.
func (f *EastMoneyFetcher) FetchSpot(ctx context.Context) ([]model.Quote, error) {
	var quotes []model.Quote
	err := f.list(ctx, spotMarkets, spotFields, func(row gjson.Result) {
		code := strings.TrimSpace(row.Get("f12").String())
		if code == "" {
			return
		}
		// Suspended listings report "-" which parses as zero.
		quotes = append(quotes, model.Quote{
			Code:           code,
			Name:           strings.TrimSpace(row.Get("f14").String()),
			LastPrice:      row.Get("f2").Float(),
			FloatMarketCap: row.Get("f21").Float(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("fetch spot: %w", err)
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("fetch spot: %w", ErrNoData)
	}
	return quotes, nil
}

// FetchBoards returns the concept boards.
func (f *EastMoneyFetcher) FetchBoards(ctx context.Context) ([]model.Board, error) {
	var boards []model.Board
	err := f.list(ctx, conceptBoards, briefFields, func(row gjson.Result) {
		code := strings.TrimSpace(row.Get("f12").String())
		if !strings.HasPrefix(code, "BK") {
			return
		}
		boards = append(boards, model.Board{Code: code, Name: strings.TrimSpace(row.Get("f14").String())})
	})
	if err != nil {
		return nil, fmt.Errorf("fetch boards: %w", err)
	}
	return boards, nil
}

// FetchBoardMembers returns the constituent codes of a concept board.
func (f *EastMoneyFetcher) FetchBoardMembers(ctx context.Context, boardCode string) ([]string, error) {
	if !strings.HasPrefix(boardCode, "BK") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBoard, boardCode)
	}
	codes := []string{}
	err := f.list(ctx, "b:"+boardCode, briefFields, func(row gjson.Result) {
		if code := strings.TrimSpace(row.Get("f12").String()); code != "" {
			codes = append(codes, code)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("fetch board %s members: %w", boardCode, err)
	}
	return codes, nil
}

// FetchDailyBars returns up to days daily bars under the given adjustment.
func (f *EastMoneyFetcher) FetchDailyBars(ctx context.Context, code string, adj model.Adjustment, days int) (model.Series, error) {
	series := model.Series{Code: code, Adjustment: adj}
	fq, err := fqt(adj)
	if err != nil {
		return series, err
	}
	if days <= 0 || days > maxKLines {
		days = maxKLines
	}

	params := url.Values{}
	params.Set("secid", SecID(code))
	params.Set("fields1", "f1,f2,f3,f4,f5,f6")
	params.Set("fields2", "f51,f52,f53,f54,f55,f56")
	params.Set("klt", "101")
	params.Set("fqt", fq)
	params.Set("end", "20500101")
	params.Set("lmt", strconv.Itoa(days))

	body, err := f.get(ctx, f.KLineURL, params)
	if err != nil {
		return series, fmt.Errorf("fetch %s bars for %s: %w", adj, code, err)
	}
	bars, err := ParseKLines(body)
	if err != nil {
		return series, fmt.Errorf("parse %s bars for %s: %w", adj, code, err)
	}
	series.Bars = bars
	return series, nil
}

// ParseKLines parses data.klines rows of the form
// "date,open,close,high,low,volume" into bars.
func ParseKLines(body []byte) ([]model.Bar, error) {
	klines := gjson.GetBytes(body, "data.klines")
	if !klines.Exists() || !klines.IsArray() {
		return nil, ErrNoData
	}
	rows := klines.Array()
	bars := make([]model.Bar, 0, len(rows))
	for _, row := range rows {
		parts := strings.Split(strings.TrimSpace(row.String()), ",")
		if len(parts) < 5 {
			continue
		}
		date, err := model.ParseDay(parts[0])
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", parts[0], err)
		}
		vals := make([]float64, 5)
		for i := 1; i < len(parts) && i <= 5; i++ {
			v, err := strconv.ParseFloat(parts[i], 64)
			if err != nil {
				return nil, fmt.Errorf("parse %s field %d: %w", parts[0], i, err)
			}
			vals[i-1] = v
		}
		bars = append(bars, model.Bar{
			Date:   date,
			Open:   vals[0],
			Close:  vals[1],
			High:   vals[2],
			Low:    vals[3],
			Volume: vals[4],
		})
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	return bars, nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		s = s[:n] + "..."
	}
	return strings.ReplaceAll(s, "\n", " ")
}
