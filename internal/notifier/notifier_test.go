package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guregu/null/v5"
	"github.com/peterldowns/testy/assert"

	"FibSentinel/internal/model"
)

func sampleReport() *model.Report {
	return &model.Report{
		Code:             "603001",
		Name:             "智能装备",
		CurrentPrice:     9,
		FloatMarketCapYi: 34.57,
		Swing: &model.SwingResult{
			LowDate:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			HighDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		LowBackward:   null.FloatFrom(10),
		HighBackward:  null.FloatFrom(21),
		LevelBackward: null.FloatFrom(16.8),
		LowForward:    null.FloatFrom(5),
		HighForward:   null.FloatFrom(10.5),
		Breakout:      false,
	}
}

func TestFormatStockReport_AbsentForwardLevel(t *testing.T) {
	out := FormatStockReport(sampleReport())
	assert.True(t, strings.Contains(out, "<b>603001 智能装备</b> 现价 9.00 | 流通 34.57亿"))
	assert.True(t, strings.Contains(out, "后复权 低 10.00 高 21.00 0.618 16.80"))
	assert.True(t, strings.Contains(out, "前复权 低 5.00 高 10.50 0.618 -"))
	assert.True(t, strings.Contains(out, "波段: 2024-03-01 → 2024-03-15"))
	assert.False(t, strings.Contains(out, "突破"))
}

func TestFormatScreenReport(t *testing.T) {
	start := time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)
	brk := sampleReport()
	brk.LevelForward = null.FloatFrom(8.4)
	brk.Breakout = true

	pass := &model.Pass{
		StartedAt:  start,
		FinishedAt: start.Add(12 * time.Second),
		Board:      "BK0800",
		Screened:   5000,
		Reports: []*model.Report{
			brk,
			{Code: "000009", Name: "AI<芯片>", CurrentPrice: 20},
			{Code: "002005", Name: "人工智能", CurrentPrice: 7, Err: "timeout"},
		},
	}
	out := FormatScreenReport(pass)
	assert.True(t, strings.Contains(out, "板块: BK0800"))
	assert.True(t, strings.Contains(out, "快照 5000 只 | 入选 3 | 波段 1 | 突破 1 | 失败 1"))
	assert.True(t, strings.Contains(out, "🚀突破"))
	assert.True(t, strings.Contains(out, "AI&lt;芯片&gt;"))
	assert.True(t, strings.Contains(out, "无有效波段"))
	assert.True(t, strings.Contains(out, "⚠️ timeout"))

	// Report order follows the pass.
	assert.True(t, strings.Index(out, "603001") < strings.Index(out, "000009"))
	assert.True(t, strings.Index(out, "000009") < strings.Index(out, "002005"))
}

func TestFormatScreenReport_Empty(t *testing.T) {
	out := FormatScreenReport(&model.Pass{StartedAt: time.Now(), Screened: 10})
	assert.True(t, strings.Contains(out, "没有符合条件的股票"))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, splitMessage("short", 10), []string{"short"})

	chunks := splitMessage("aaaa\nbbbb\ncccc\n", 10)
	assert.Equal(t, chunks, []string{"aaaa\nbbbb", "cccc"})

	chunks = splitMessage("智能智能智能\n短", 4)
	assert.Equal(t, chunks, []string{"智能智能", "智能\n短"})

	long := strings.Repeat("行情数据\n", 2000)
	for _, c := range splitMessage(long, MaxMessageLen) {
		assert.True(t, len([]rune(c)) <= MaxMessageLen)
	}
}

type fakeTelegram struct {
	mu       sync.Mutex
	sent     []string
	failures atomic.Int32
	// failOn rejects the sendMessage call with this 1-based number once.
	failOn  int32
	calls   atomic.Int32
	updates atomic.Bool
}

func (f *fakeTelegram) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			if n := f.calls.Add(1); f.failOn > 0 && n == f.failOn {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			if f.failures.Load() > 0 {
				f.failures.Add(-1)
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			var payload map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, payload["parse_mode"], "HTML")
			f.mu.Lock()
			f.sent = append(f.sent, payload["text"])
			f.mu.Unlock()
			fmt.Fprint(w, `{"ok":true}`)
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if f.updates.CompareAndSwap(false, true) {
				fmt.Fprint(w, `{"ok":true,"result":[{"update_id":7,"message":{"text":" /stock 603001 "}}]}`)
				return
			}
			time.Sleep(10 * time.Millisecond)
			fmt.Fprint(w, `{"ok":true,"result":[]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeTelegram) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestNotifier(url string) *TelegramNotifier {
	n := NewTelegramNotifier("token", "42", "")
	n.APIBase = url
	return n
}

func TestSend_SplitsLongMessages(t *testing.T) {
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	text := strings.Repeat("603001 智能装备 现价 9.00\n", 400)
	assert.NoError(t, newTestNotifier(srv.URL).Send(text))
	sent := fake.messages()
	assert.True(t, len(sent) > 1)
	assert.Equal(t, strings.Join(sent, "\n"), strings.TrimRight(text, "\n"))
}

func TestSendWithRetry(t *testing.T) {
	fake := &fakeTelegram{}
	fake.failures.Store(2)
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	n := newTestNotifier(srv.URL)

	assert.NoError(t, n.sendWithRetry(context.Background(), "hello", 2, time.Millisecond))
	assert.Equal(t, fake.messages(), []string{"hello"})

	fake.failures.Store(5)
	err := n.sendWithRetry(context.Background(), "hello", 1, time.Millisecond)
	assert.Error(t, err)
}

func TestSendWithRetry_RetriesOnlyFailedChunk(t *testing.T) {
	fake := &fakeTelegram{failOn: 2}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	text := strings.Repeat("603001 智能装备 现价 9.00\n", 400)
	assert.Equal(t, len(splitMessage(text, MaxMessageLen)), 2)

	assert.NoError(t, newTestNotifier(srv.URL).sendWithRetry(context.Background(), text, 2, time.Millisecond))
	sent := fake.messages()
	assert.Equal(t, len(sent), 2)
	assert.Equal(t, strings.Join(sent, "\n"), strings.TrimRight(text, "\n"))
	assert.Equal(t, fake.calls.Load(), int32(3))
}

func TestStartPolling_DispatchesCommands(t *testing.T) {
	fake := &fakeTelegram{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	n := newTestNotifier(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		n.StartPolling(ctx, func(_ context.Context, cmd string) string {
			got <- cmd
			return "reply to " + cmd
		})
		close(done)
	}()

	select {
	case cmd := <-got:
		assert.Equal(t, cmd, "/stock 603001")
	case <-time.After(5 * time.Second):
		t.Fatal("command not dispatched")
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(fake.messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, fake.messages(), []string{"reply to /stock 603001"})

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop")
	}
}
