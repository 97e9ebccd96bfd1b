package tasksplugin

import (
	"context"
	"fmt"
	"strconv"
	"time"

	kit "tomobot/internal/transport"
	logx "tomobot/pkg/logx"
	"tomobot/pkg/tgui"
)

var priorityMark = map[string]string{
	"high":   "🔴",
	"medium": "🟡",
	"low":    "🟢",
}

func taskLine(t Task) string {
	mark := priorityMark[t.Priority]
	line := tgui.JoinH(" ",
		tgui.Raw(mark),
		tgui.Code("#"+strconv.FormatInt(t.ID, 10)),
		tgui.Esc(t.Title),
	)
	if t.Due != nil {
		line = tgui.JoinH(" ", line, tgui.Esc("〆"+t.Due.Local().Format("01/02")))
	}
	if !t.Open() {
		line = tgui.JoinH(" ", tgui.Raw("✅"), line)
	}
	return line.String()
}

func listMessage(tasks []Task, includeDone bool) tgui.Message {
	title := "タスク一覧"
	if includeDone {
		title = "タスク一覧（完了含む）"
	}
	b := tgui.New().Title("📋", title)
	for _, t := range tasks {
		b.RawLine(taskLine(t))
	}
	return b.Build()
}

// runDigest posts open tasks due within the configured window to the
// digest chat.
func (p *Plugin) runDigest(ctx context.Context) error {
	cfg := p.config()
	now := time.Now()
	to := now.AddDate(0, 0, cfg.DueSoonDays)

	tasks, err := p.store.DueBetween(ctx, now, to)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}

	b := tgui.New().
		Title("📅", fmt.Sprintf("%d日以内に期限のタスク", cfg.DueSoonDays))
	for _, t := range tasks {
		b.RawLine(taskLine(t))
	}
	to2 := kit.ChatTarget{ChatID: cfg.DigestChatID}
	if _, err := b.Build().Send(ctx, p.Deps.Adapter, to2); err != nil {
		p.Log.Warn("task digest send failed", logx.Err(err))
		return err
	}
	return nil
}
