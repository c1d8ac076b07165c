package scheduler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"FibSentinel/internal/collector"
	"FibSentinel/internal/model"
	"FibSentinel/internal/notifier"
	"FibSentinel/internal/recorder"
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

// Sender delivers formatted reports.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler manages the screen cron task and user commands.
type Scheduler struct {
	Cron      *cron.Cron
	Collector *collector.Collector
	Notifier  Sender
	Recorder  recorder.Recorder
	Ctx       context.Context

	passMu sync.Mutex
}

// NewScheduler creates a new Scheduler. tn may be nil when notifications are disabled.
func NewScheduler(ctx context.Context, col *collector.Collector, tn Sender, rec recorder.Recorder) *Scheduler {
	logger := cronLogger{zerolog.Ctx(ctx)}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds(), cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		Collector: col,
		Notifier:  tn,
		Recorder:  rec,
		Ctx:       ctx,
	}
}

// RegisterAll registers the screen pass.
func (s *Scheduler) RegisterAll(screenCron string) error {
	if _, err := s.Cron.AddFunc(screenCron, s.screenTask); err != nil {
		return fmt.Errorf("register screen task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	zerolog.Ctx(s.Ctx).Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	zerolog.Ctx(s.Ctx).Info().Msg("scheduler stopped")
}

// RunNow executes a screen pass immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.screenTask()
}

func (s *Scheduler) screenTask() {
	if _, err := s.runPass(s.Ctx); err != nil {
		zerolog.Ctx(s.Ctx).Error().Msgf("screen pass: %v", err)
	}
}

var errPassRunning = errors.New("a screen pass is already running")

// runPass runs one pass, persists it and sends the report.
func (s *Scheduler) runPass(ctx context.Context) (*model.Pass, error) {
	if !s.passMu.TryLock() {
		return nil, errPassRunning
	}
	defer s.passMu.Unlock()

	logger := zerolog.Ctx(ctx)
	logger.Info().Msg("running screen pass")
	pass, err := s.Collector.Run(ctx)
	if err != nil {
		s.trySend(ctx, fmt.Sprintf("❌ 筛选失败: %v", err))
		return pass, err
	}

	if err := s.Recorder.RecordPass(pass); err != nil {
		logger.Error().Msgf("record pass: %v", err)
	}
	if err := s.Recorder.RecordHistory(pass.History); err != nil {
		logger.Error().Msgf("record history: %v", err)
	}

	s.trySend(ctx, notifier.FormatScreenReport(pass))
	return pass, nil
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return help
	}

	switch fields[0] {
	case "/screen", "筛选":
		// Failures are reported by runPass itself.
		if _, err := s.runPass(ctx); errors.Is(err, errPassRunning) {
			return "⏳ 筛选正在进行中"
		}
		return ""
	case "/stock", "查询":
		if len(fields) < 2 || !codePattern.MatchString(fields[1]) {
			return "用法: /stock 600519"
		}
		return s.stockReport(ctx, fields[1])
	case "/boards", "板块":
		boards, err := s.Collector.Fetcher.FetchBoards(ctx)
		if err != nil {
			return fmt.Sprintf("❌ 板块获取失败: %v", err)
		}
		if err := s.Recorder.RecordBoards(boards); err != nil {
			zerolog.Ctx(ctx).Error().Msgf("record boards: %v", err)
		}
		return notifier.FormatBoards(boards)
	default:
		return help
	}
}

const help = "可用命令:\n• /screen 立即筛选\n• /stock 代码 查询单只股票\n• /boards 概念板块列表"

func (s *Scheduler) stockReport(ctx context.Context, code string) string {
	logger := zerolog.Ctx(ctx)

	quote, err := s.findQuote(ctx, code)
	if err == nil {
		r := s.Collector.Analyze(ctx, quote)
		if r.Err == "" || r.HasSwing() {
			return notifier.FormatStockReport(r)
		}
		err = errors.New(r.Err)
	}
	logger.Warn().Msgf("live analysis of %s failed: %v", code, err)

	stored, lerr := s.Recorder.LatestReport(code)
	if lerr != nil {
		return fmt.Sprintf("❌ %s 分析失败: %v", code, err)
	}
	return "📦 数据源不可用，显示最近一次记录\n\n" + notifier.FormatStockReport(stored)
}

func (s *Scheduler) findQuote(ctx context.Context, code string) (model.Quote, error) {
	quotes, err := s.Collector.Fetcher.FetchSpot(ctx)
	if err != nil {
		return model.Quote{}, err
	}
	for _, q := range quotes {
		if q.Code == code {
			return q, nil
		}
	}
	return model.Quote{}, fmt.Errorf("%s not in spot snapshot: %w", code, collector.ErrNoData)
}

func (s *Scheduler) trySend(ctx context.Context, text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(ctx, text, 3); err != nil {
		zerolog.Ctx(ctx).Error().Msgf("send notification: %v", err)
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l *zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
