package tasksplugin

import (
	"context"
	"strconv"
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
			Route:       "task add",
			Aliases:     []string{"ta"},
			Description: "タスクを追加",
			Usage:       "/task add <内容> [--due 日付] [--p high|medium|low]\n例: /task add 議事録 --due 明日 --p high",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdAdd,
		},
		{
			Route:       "task list",
			Aliases:     []string{"tl"},
			Description: "タスク一覧",
			Usage:       "/task list [--all]",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdList,
		},
		{
			Route:       "task done",
			Description: "タスクを完了にする",
			Usage:       "/task done <番号>",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdDone,
		},
		{
			Route:       "task rm",
			Description: "タスクを削除",
			Usage:       "/task rm <番号>",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdRemove,
		},
	}
}

func (p *Plugin) reply(ctx context.Context, req *plugin.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

// parseDue accepts the same date forms the reminder parser does, at
// end of day so a task due "today" stays open all day.
func parseDue(tok string, now time.Time) (*time.Time, error) {
	at, err := reminder.ParseAbsolute(tok, "23:59", now)
	if err != nil {
		return nil, err
	}
	return &at, nil
}

func (p *Plugin) cmdAdd(ctx context.Context, req *plugin.Request) error {
	title := strings.TrimSpace(strings.Join(req.Args, " "))
	if title == "" {
		return p.reply(ctx, req, "使い方: <code>/task add &lt;内容&gt; [--due 日付] [--p high|medium|low]</code>")
	}

	now := time.Now()
	t := Task{
		ChatID:    req.Chat.ChatID,
		CreatedBy: req.FromID,
		Title:     title,
		Priority:  "medium",
		CreatedAt: now,
	}
	if pr, ok := req.Flags["p"]; ok {
		pr = strings.ToLower(pr)
		if !validPriority(pr) {
			return p.reply(ctx, req, "⚠️ 優先度は high / medium / low のいずれかです。")
		}
		t.Priority = pr
	}
	if due, ok := req.Flags["due"]; ok {
		d, err := parseDue(due, now)
		if err != nil {
			return p.reply(ctx, req, "⚠️ 期限を解釈できませんでした。例: --due 明日, --due 2026-09-10")
		}
		t.Due = d
	}

	id, err := p.store.Add(ctx, t)
	if err != nil {
		p.Log.Error("task add failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ タスクを保存できませんでした。")
	}

	b := tgui.New().Title("📝", "タスクを追加しました").
		KV("番号", strconv.FormatInt(id, 10)).
		KV("内容", t.Title).
		KV("優先度", t.Priority)
	if t.Due != nil {
		b.KV("期限", t.Due.Local().Format("2006-01-02"))
	}
	_, err = b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdList(ctx context.Context, req *plugin.Request) error {
	includeDone := req.BoolFlags["all"]
	tasks, err := p.store.List(ctx, req.Chat.ChatID, includeDone)
	if err != nil {
		p.Log.Error("task list failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ タスクを読み込めませんでした。")
	}
	tasks = p.visible(tasks, req.Chat.ChatID, req.FromID)
	if len(tasks) == 0 {
		return p.reply(ctx, req, "タスクはありません。/task add で追加できます。")
	}
	_, err = listMessage(tasks, includeDone).Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) taskByArg(ctx context.Context, req *plugin.Request) (Task, bool, error) {
	if len(req.Args) != 1 {
		return Task{}, false, nil
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		return Task{}, false, nil
	}
	t, err := p.store.Get(ctx, req.Chat.ChatID, id)
	if err != nil {
		return Task{}, true, err
	}
	return t, true, nil
}

func (p *Plugin) cmdDone(ctx context.Context, req *plugin.Request) error {
	t, argOK, err := p.taskByArg(ctx, req)
	if !argOK {
		return p.reply(ctx, req, "使い方: <code>/task done &lt;番号&gt;</code>")
	}
	if err == ErrTaskNotFound {
		return p.reply(ctx, req, "その番号のタスクはありません。")
	}
	if err != nil {
		p.Log.Error("task lookup failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ タスクを読み込めませんでした。")
	}

	if err := p.store.SetDone(ctx, req.Chat.ChatID, t.ID, time.Now()); err != nil {
		if err == ErrTaskNotFound {
			return p.reply(ctx, req, "そのタスクは既に完了しています。")
		}
		p.Log.Error("task done failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ 更新に失敗しました。")
	}
	return p.reply(ctx, req, "✅ 完了: "+tgui.Esc(t.Title).String())
}

func (p *Plugin) cmdRemove(ctx context.Context, req *plugin.Request) error {
	t, argOK, err := p.taskByArg(ctx, req)
	if !argOK {
		return p.reply(ctx, req, "使い方: <code>/task rm &lt;番号&gt;</code>")
	}
	if err == ErrTaskNotFound {
		return p.reply(ctx, req, "その番号のタスクはありません。")
	}
	if err != nil {
		p.Log.Error("task lookup failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ タスクを読み込めませんでした。")
	}

	if err := p.store.Remove(ctx, req.Chat.ChatID, t.ID); err != nil {
		p.Log.Error("task remove failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ 削除に失敗しました。")
	}
	return p.reply(ctx, req, "🗑 削除: "+tgui.Esc(t.Title).String())
}
