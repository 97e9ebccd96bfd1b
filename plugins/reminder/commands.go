package reminderplugin

import (
	"context"
	"errors"
	"sort"
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
			Route:       "remind",
			Description: "リマインダーを登録（相対時刻）",
			Usage:       "/remind <期間> [メッセージ] [--notify]\n例: /remind 1h30m 休憩",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdCreate,
		},
		{
			Route:       "remind at",
			Description: "リマインダーを登録（日時指定）",
			Usage:       "/remind at <日付> <時刻> [メッセージ] [--notify]\n例: /remind at 明日 09:00 朝会",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdCreateAt,
		},
		{
			Route:       "remind list",
			Aliases:     []string{"rl"},
			Description: "自分のリマインダー一覧",
			Usage:       "/remind list",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdList,
		},
		{
			Route:       "remind delete",
			Aliases:     []string{"rd"},
			Description: "リマインダーを削除",
			Usage:       "/remind delete <ID または先頭8文字>",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdDelete,
		},
		{
			Route:       "remind clear",
			Description: "自分のリマインダーを全削除",
			Usage:       "/remind clear",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdClear,
		},
	}
}

func (p *Plugin) reply(ctx context.Context, req *plugin.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

// create registers a reminder after target-time validation, snapshotting
// recipients synchronously so later membership changes have no effect.
func (p *Plugin) create(ctx context.Context, req *plugin.Request, at time.Time, message string, now time.Time) error {
	if err := reminder.CheckTarget(at, now); err != nil {
		return p.reply(ctx, req, "⚠️ "+tgui.Esc(err.Error()).String())
	}

	notify := req.BoolFlags["notify"]
	var recipients []int64
	if notify {
		recipients = p.resolver.Resolve(ctx, req.Chat)
	}

	r := reminder.New(req.FromID, req.Chat, message, at, notify, recipients, now)
	if err := p.store.Add(r); err != nil {
		p.Log.Error("reminder add failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ リマインダーを保存できませんでした。時間をおいて再度お試しください。")
	}

	b := tgui.New().
		Title("⏰", "リマインダーを登録しました").
		KV("ID", r.ShortID()).
		KV("日時", fmtWhen(r.At)).
		KV("メッセージ", r.Message)
	if notify {
		b.KV("通知", mentionCount(len(r.Recipients)))
	}
	_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdCreate(ctx context.Context, req *plugin.Request) error {
	if len(req.Args) == 0 {
		return p.reply(ctx, req, "使い方: <code>/remind &lt;期間&gt; [メッセージ]</code> 例: <code>/remind 1h30m 休憩</code>")
	}
	now := time.Now()
	d, err := reminder.ParseRelative(req.Args[0])
	if err != nil {
		return p.reply(ctx, req, "⚠️ "+tgui.Esc(err.Error()).String())
	}
	message := strings.TrimSpace(strings.Join(req.Args[1:], " "))
	return p.create(ctx, req, now.Add(d), message, now)
}

func (p *Plugin) cmdCreateAt(ctx context.Context, req *plugin.Request) error {
	if len(req.Args) == 0 {
		return p.reply(ctx, req, "使い方: <code>/remind at &lt;日付&gt; &lt;時刻&gt; [メッセージ]</code> 例: <code>/remind at 明日 09:00 朝会</code>")
	}
	now := time.Now()

	// Date and time tokens, or a bare time token meaning "today".
	if len(req.Args) >= 2 {
		if at, err := reminder.ParseAbsolute(req.Args[0], req.Args[1], now); err == nil {
			message := strings.TrimSpace(strings.Join(req.Args[2:], " "))
			return p.create(ctx, req, at, message, now)
		}
	}
	at, err := reminder.ParseAbsolute("today", req.Args[0], now)
	if err != nil {
		return p.reply(ctx, req, "⚠️ 日時を解釈できませんでした。例: <code>/remind at 明日 09:00 朝会</code>")
	}
	message := strings.TrimSpace(strings.Join(req.Args[1:], " "))
	return p.create(ctx, req, at, message, now)
}

func (p *Plugin) mine(ownerID int64) ([]reminder.Reminder, error) {
	all, err := p.store.ListAll()
	if err != nil {
		return nil, err
	}
	out := make([]reminder.Reminder, 0, len(all))
	for _, r := range all {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (p *Plugin) cmdList(ctx context.Context, req *plugin.Request) error {
	items, err := p.mine(req.FromID)
	if err != nil {
		p.Log.Error("reminder list failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ リマインダーを読み込めませんでした。")
	}
	if len(items) == 0 {
		return p.reply(ctx, req, "登録中のリマインダーはありません。")
	}
	sort.Slice(items, func(i, j int) bool { return items[i].At.Before(items[j].At) })

	limit := p.config().ListLimit
	msg := listMessage(items, limit)
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdDelete(ctx context.Context, req *plugin.Request) error {
	if len(req.Args) != 1 {
		return p.reply(ctx, req, "使い方: <code>/remind delete &lt;ID&gt;</code>（先頭8文字でも可）")
	}
	items, err := p.mine(req.FromID)
	if err != nil {
		p.Log.Error("reminder delete failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ リマインダーを読み込めませんでした。")
	}

	target, err := reminder.FindByPrefix(items, req.Args[0])
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		return p.reply(ctx, req, "該当するリマインダーが見つかりません。")
	case errors.Is(err, reminder.ErrAmbiguous):
		return p.reply(ctx, req, "同じ先頭のIDが複数あります。より長いIDを指定してください。")
	case err != nil:
		return p.reply(ctx, req, "⚠️ 削除に失敗しました。")
	}

	if err := p.store.Remove(target.ID); err != nil {
		p.Log.Error("reminder remove failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ 削除に失敗しました。")
	}
	return p.reply(ctx, req, "🗑 <code>"+tgui.Esc(target.ShortID()).String()+"</code> を削除しました。")
}

type clearTicket struct {
	Owner int64 `json:"owner"`
	Count int   `json:"count"`
}

func (p *Plugin) cmdClear(ctx context.Context, req *plugin.Request) error {
	items, err := p.mine(req.FromID)
	if err != nil {
		p.Log.Error("reminder clear failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ リマインダーを読み込めませんでした。")
	}
	if len(items) == 0 {
		return p.reply(ctx, req, "登録中のリマインダーはありません。")
	}

	tok, err := p.pending.PutJSON(clearTicket{Owner: req.FromID, Count: len(items)})
	if err != nil {
		return p.reply(ctx, req, "⚠️ 操作を開始できませんでした。")
	}

	kb := tgui.ConfirmInline(
		tgui.Btn("はい、全て削除", tgui.Data(p.Name(), "clear_yes", tok)),
		tgui.Btn("キャンセル", tgui.Data(p.Name(), "clear_no", tok)),
	)
	msg := tgui.New().
		Title("🗑", "リマインダーの全削除").
		Line(confirmPrompt(len(items))).
		Line("30秒以内に選択してください。").
		Inline(kb).
		Build()
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) Callbacks() []plugin.CallbackRoute {
	return []plugin.CallbackRoute{
		{
			Action:      "clear_yes",
			Description: "confirm clear-all",
			Access:      plugin.CallbackAccessEveryone,
			Handle:      p.cbClearYes,
		},
		{
			Action:      "clear_no",
			Description: "cancel clear-all",
			Access:      plugin.CallbackAccessEveryone,
			Handle:      p.cbClearNo,
		},
	}
}

func (p *Plugin) editCallbackMessage(ctx context.Context, req *plugin.Request, text string) error {
	ref := kit.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, MessageID: req.Update.Callback.MessageID}
	return req.Adapter.EditText(ctx, ref, text, &kit.SendOptions{ParseMode: "HTML"})
}

func (p *Plugin) cbClearYes(ctx context.Context, req *plugin.Request, payload string) error {
	var t clearTicket
	if err := p.pending.GetJSON(payload, &t); err != nil {
		return p.editCallbackMessage(ctx, req, "⌛ 確認の有効期限が切れました。もう一度 <code>/remind clear</code> を実行してください。")
	}
	// Only the requesting user can confirm their own clear-all.
	if t.Owner != req.FromID {
		return nil
	}
	p.pending.Delete(payload)

	n, err := p.store.RemoveWhere(func(r reminder.Reminder) bool { return r.OwnerID == t.Owner })
	if err != nil {
		p.Log.Error("reminder clear-all failed", logx.Err(err))
		return p.editCallbackMessage(ctx, req, "⚠️ 削除に失敗しました。")
	}
	return p.editCallbackMessage(ctx, req, "🗑 "+clearedText(n))
}

func (p *Plugin) cbClearNo(ctx context.Context, req *plugin.Request, payload string) error {
	var t clearTicket
	if err := p.pending.GetJSON(payload, &t); err != nil {
		return p.editCallbackMessage(ctx, req, "⌛ 確認の有効期限が切れました。")
	}
	if t.Owner != req.FromID {
		return nil
	}
	p.pending.Delete(payload)
	return p.editCallbackMessage(ctx, req, "キャンセルしました。リマインダーはそのままです。")
}
