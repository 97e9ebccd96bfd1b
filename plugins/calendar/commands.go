package calendarplugin

import (
	"context"
	"errors"
	"strings"
	"time"

	"tomobot/internal/plugin"
	"tomobot/internal/reminder"
	kit "tomobot/internal/transport"
	logx "tomobot/pkg/logx"
	"tomobot/pkg/tgui"
)

func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{
			Route:       "cal add",
			Description: "予定を追加",
			Usage:       "/cal add <日付> [時刻] <タイトル>\n例: /cal add 明日 14:00 定例会",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdAdd,
		},
		{
			Route:       "cal list",
			Aliases:     []string{"cl"},
			Description: "今後の予定一覧",
			Usage:       "/cal list",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdList,
		},
		{
			Route:       "cal today",
			Description: "今日の予定",
			Usage:       "/cal today",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdToday,
		},
		{
			Route:       "cal rm",
			Description: "予定を削除",
			Usage:       "/cal rm <ID または先頭8文字>",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdRemove,
		},
	}
}

func (p *Plugin) reply(ctx context.Context, req *plugin.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

// parseWhen reads "<date> [time]" from the argument list. Without a
// time token the event is all-day, pinned to noon so date comparisons
// stay inside the day.
func parseWhen(args []string, now time.Time) (at time.Time, allDay bool, rest []string, err error) {
	if len(args) == 0 {
		return time.Time{}, false, nil, errors.New("date required")
	}
	if len(args) >= 2 {
		if at, err = reminder.ParseAbsolute(args[0], args[1], now); err == nil {
			return at, false, args[2:], nil
		}
	}
	if at, err = reminder.ParseAbsolute(args[0], "12:00", now); err == nil {
		return at, true, args[1:], nil
	}
	return time.Time{}, false, nil, err
}

func (p *Plugin) cmdAdd(ctx context.Context, req *plugin.Request) error {
	now := time.Now()
	at, allDay, rest, err := parseWhen(req.Args, now)
	if err != nil {
		return p.reply(ctx, req, "使い方: <code>/cal add &lt;日付&gt; [時刻] &lt;タイトル&gt;</code> 例: <code>/cal add 明日 14:00 定例会</code>")
	}
	title := strings.TrimSpace(strings.Join(rest, " "))
	if title == "" {
		return p.reply(ctx, req, "⚠️ タイトルを指定してください。")
	}

	e := newEvent(req.Chat.ChatID, req.FromID, title, at, allDay, now)
	if err := p.store.Add(e); err != nil {
		p.Log.Error("event add failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ 予定を保存できませんでした。")
	}
	if err := p.backend.Push(ctx, []Event{e}); err != nil {
		p.Log.Warn("calendar sync failed", logx.Err(err))
	}

	b := tgui.New().Title("🗓", "予定を追加しました").
		KV("ID", e.ShortID()).
		KV("日時", fmtEventWhen(e)).
		KV("タイトル", e.Title)
	_, err = b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdList(ctx context.Context, req *plugin.Request) error {
	now := time.Now()
	events, err := p.store.List(req.Chat.ChatID, now.Truncate(24*time.Hour))
	if err != nil {
		p.Log.Error("event list failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ 予定を読み込めませんでした。")
	}
	events = p.visible(events, req.Chat.ChatID, req.FromID)
	if len(events) == 0 {
		return p.reply(ctx, req, "今後の予定はありません。/cal add で追加できます。")
	}
	_, err = eventsMessage("今後の予定", events).Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdToday(ctx context.Context, req *plugin.Request) error {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	events, err := p.store.On(req.Chat.ChatID, start, start.AddDate(0, 0, 1))
	if err != nil {
		p.Log.Error("event list failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ 予定を読み込めませんでした。")
	}
	events = p.visible(events, req.Chat.ChatID, req.FromID)
	if len(events) == 0 {
		return p.reply(ctx, req, "今日の予定はありません。")
	}
	_, err = eventsMessage("今日の予定", events).Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdRemove(ctx context.Context, req *plugin.Request) error {
	if len(req.Args) != 1 {
		return p.reply(ctx, req, "使い方: <code>/cal rm &lt;ID&gt;</code>（先頭8文字でも可）")
	}
	removed, err := p.store.Remove(req.Chat.ChatID, req.Args[0])
	switch {
	case errors.Is(err, ErrEventNotFound):
		return p.reply(ctx, req, "該当する予定が見つかりません。")
	case errors.Is(err, ErrEventAmbiguous):
		return p.reply(ctx, req, "同じ先頭のIDが複数あります。より長いIDを指定してください。")
	case err != nil:
		p.Log.Error("event remove failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ 削除に失敗しました。")
	}
	return p.reply(ctx, req, "🗑 削除: "+tgui.Esc(removed.Title).String())
}

func fmtEventWhen(e Event) string {
	if e.AllDay {
		return e.At.Local().Format("2006-01-02") + " 終日"
	}
	return e.At.Local().Format("2006-01-02 15:04")
}

func eventsMessage(title string, events []Event) tgui.Message {
	b := tgui.New().Title("🗓", title)
	for _, e := range events {
		line := tgui.JoinH(" ",
			tgui.Code(e.ShortID()),
			tgui.Esc(fmtEventWhen(e)),
			tgui.Esc(e.Title),
		)
		b.RawLine(line.String())
	}
	return b.Build()
}

// runMorning announces today's events in every chat that has any.
func (p *Plugin) runMorning(ctx context.Context) error {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)

	chats, err := p.store.ChatsWithEvents(start, end)
	if err != nil {
		return err
	}
	for _, chatID := range chats {
		events, err := p.store.On(chatID, start, end)
		if err != nil || len(events) == 0 {
			continue
		}
		to := kit.ChatTarget{ChatID: chatID}
		if _, err := eventsMessage("おはようございます。今日の予定です", events).Send(ctx, p.Deps.Adapter, to); err != nil {
			p.Log.Warn("morning announce failed", logx.Int64("chat", chatID), logx.Err(err))
		}
	}

	// Housekeeping: drop events older than a week.
	if n, err := p.store.PurgePast(now.AddDate(0, 0, -7)); err == nil && n > 0 {
		p.Log.Debug("purged past events", logx.Int("count", n))
	}
	return nil
}
