package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/guregu/null/v5"

	"FibSentinel/internal/model"
)

// FormatScreenReport formats a screen pass into a Telegram message.
func FormatScreenReport(pass *model.Pass) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📐 <b>FibSentinel 0.618 筛选</b> | %s\n", pass.StartedAt.Format("2006-01-02 15:04")))
	if pass.Board != "" {
		b.WriteString(fmt.Sprintf("板块: %s\n", html.EscapeString(pass.Board)))
	}
	swings, breakouts, failed := pass.Counts()
	b.WriteString(fmt.Sprintf("快照 %d 只 | 入选 %d | 波段 %d | 突破 %d | 失败 %d\n",
		pass.Screened, len(pass.Reports), swings, breakouts, failed))
	if !pass.FinishedAt.IsZero() {
		b.WriteString(fmt.Sprintf("耗时 %v\n", pass.FinishedAt.Sub(pass.StartedAt).Round(time.Second)))
	}

	if len(pass.Reports) == 0 {
		b.WriteString("\n没有符合条件的股票")
		return b.String()
	}

	for _, r := range pass.Reports {
		b.WriteString("\n")
		writeReport(&b, r)
	}
	return b.String()
}

// FormatStockReport formats a single instrument's analysis.
func FormatStockReport(r *model.Report) string {
	var b strings.Builder
	writeReport(&b, r)
	if r.HasSwing() {
		b.WriteString(fmt.Sprintf("  波段: %s → %s\n",
			r.Swing.LowDate.Format(model.DateLayout), r.Swing.HighDate.Format(model.DateLayout)))
	}
	if !r.AnalyzedAt.IsZero() {
		b.WriteString(fmt.Sprintf("  分析时间: %s\n", r.AnalyzedAt.Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatBoards formats the concept board list.
func FormatBoards(boards []model.Board) string {
	if len(boards) == 0 {
		return "没有板块数据"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗂 <b>概念板块</b> (%d)\n\n", len(boards)))
	for _, bd := range boards {
		b.WriteString(fmt.Sprintf("%s %s\n", bd.Code, html.EscapeString(bd.Name)))
	}
	return b.String()
}

func writeReport(b *strings.Builder, r *model.Report) {
	b.WriteString(fmt.Sprintf("<b>%s %s</b> 现价 %.2f | 流通 %.2f亿", r.Code, html.EscapeString(r.Name), r.CurrentPrice, r.FloatMarketCapYi))
	if r.Breakout {
		b.WriteString(" 🚀突破")
	}
	b.WriteString("\n")

	switch {
	case r.HasSwing():
		b.WriteString(fmt.Sprintf("  后复权 低 %s 高 %s 0.618 %s\n",
			level(r.LowBackward), level(r.HighBackward), level(r.LevelBackward)))
		b.WriteString(fmt.Sprintf("  前复权 低 %s 高 %s 0.618 %s\n",
			level(r.LowForward), level(r.HighForward), level(r.LevelForward)))
	case r.Err == "":
		b.WriteString("  无有效波段\n")
	}
	if r.Err != "" {
		b.WriteString(fmt.Sprintf("  ⚠️ %s\n", html.EscapeString(r.Err)))
	}
}

func level(v null.Float) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f", v.Float64)
}

// splitMessage breaks text into chunks of at most limit runes, cutting on
// line boundaries where possible.
func splitMessage(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur []rune
	flush := func() {
		if chunk := strings.TrimRight(string(cur), "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		cur = cur[:0]
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		r := []rune(line)
		if len(cur)+len(r) > limit {
			flush()
		}
		for len(r) > limit {
			chunks = append(chunks, string(r[:limit]))
			r = r[limit:]
		}
		cur = append(cur, r...)
	}
	flush()
	return chunks
}
