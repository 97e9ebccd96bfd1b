package privacyplugin

import (
	"context"
	"sort"
	"strings"

	"tomobot/internal/plugin"
	kit "tomobot/internal/transport"
	logx "tomobot/pkg/logx"
	"tomobot/pkg/tgui"
)

func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{
			Route:       "privacy",
			Description: "このチャットでの表示設定を確認",
			Usage:       "/privacy",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdStatus,
		},
		{
			Route:       "privacy set",
			Description: "機能ごとの表示設定を変更",
			Usage:       "/privacy set <tasks|calendar> <private|shared>",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdSet,
		},
	}
}

func (p *Plugin) reply(ctx context.Context, req *plugin.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

func (p *Plugin) cmdStatus(ctx context.Context, req *plugin.Request) error {
	private := p.store.userFlags(req.Chat.ChatID, req.FromID)
	sort.Strings(private)

	b := tgui.New().Title("🔐", "表示設定")
	features := make([]string, 0, len(knownFeatures))
	for f := range knownFeatures {
		features = append(features, f)
	}
	sort.Strings(features)
	for _, f := range features {
		mode := "shared"
		for _, pf := range private {
			if pf == f {
				mode = "private"
			}
		}
		b.KV(f, mode)
	}
	b.Blank().Line("変更は /privacy set <機能> <private|shared> でどうぞ。")
	_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdSet(ctx context.Context, req *plugin.Request) error {
	if len(req.Args) != 2 {
		return p.reply(ctx, req, "使い方: <code>/privacy set &lt;tasks|calendar&gt; &lt;private|shared&gt;</code>")
	}
	feature := strings.ToLower(req.Args[0])
	mode := strings.ToLower(req.Args[1])
	if !knownFeatures[feature] {
		return p.reply(ctx, req, "⚠️ 未知の機能です。tasks か calendar を指定してください。")
	}
	var private bool
	switch mode {
	case "private":
		private = true
	case "shared":
		private = false
	default:
		return p.reply(ctx, req, "⚠️ private か shared を指定してください。")
	}

	if err := p.store.setPrivate(req.Chat.ChatID, req.FromID, feature, private); err != nil {
		p.Log.Error("privacy flag save failed", logx.Err(err))
		return p.reply(ctx, req, "⚠️ 設定を保存できませんでした。")
	}
	if private {
		return p.reply(ctx, req, "🔒 "+tgui.Esc(feature).String()+" をこのチャットで非公開にしました。")
	}
	return p.reply(ctx, req, "🔓 "+tgui.Esc(feature).String()+" をこのチャットで共有に戻しました。")
}
