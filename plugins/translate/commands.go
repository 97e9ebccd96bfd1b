package translateplugin

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"tomobot/internal/plugin"
	kit "tomobot/internal/transport"
	logx "tomobot/pkg/logx"
	"tomobot/pkg/tgui"
)

func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{
			Route:       "tr",
			Description: "テキストを翻訳",
			Usage:       "/tr <言語> <テキスト>\n例: /tr en こんにちは",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdTranslate,
		},
		{
			Route:       "tr langs",
			Description: "対応言語の一覧",
			Usage:       "/tr langs",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdLangs,
		},
	}
}

func (p *Plugin) reply(ctx context.Context, req *plugin.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

func (p *Plugin) cmdLangs(ctx context.Context, req *plugin.Request) error {
	b := tgui.New().Title("🌐", "対応言語")
	for _, t := range targets {
		b.RawLine(tgui.JoinH(" ", tgui.Raw(t.Flag), tgui.Code(t.Code), tgui.Esc(t.Label)).String())
	}
	_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdTranslate(ctx context.Context, req *plugin.Request) error {
	if len(req.Args) < 2 {
		return p.reply(ctx, req, "使い方: <code>/tr &lt;言語&gt; &lt;テキスト&gt;</code> 対応言語は /tr langs でどうぞ。")
	}
	tgt, ok := findTarget(req.Args[0])
	if !ok {
		return p.reply(ctx, req, "⚠️ 未対応の言語です。/tr langs で確認してください。")
	}
	text := strings.TrimSpace(strings.Join(req.Args[1:], " "))
	if text == "" {
		return p.reply(ctx, req, "⚠️ 翻訳するテキストを指定してください。")
	}
	if utf8.RuneCountInString(text) > MaxInputRunes {
		return p.reply(ctx, req, "⚠️ テキストが長すぎます（300文字まで）。")
	}

	if ok, reason := p.limits.Allow(req.FromID, time.Now()); !ok {
		return p.reply(ctx, req, "⏳ "+reason+"に達しました。しばらくしてからどうぞ。")
	}

	out, hit := p.cache.Get(tgt.Code, text)
	if !hit {
		var err error
		out, err = p.backend.Translate(ctx, text, tgt.Code)
		if err != nil {
			p.Log.Warn("translate failed", logx.String("target", tgt.Code), logx.Err(err))
			return p.reply(ctx, req, "⚠️ 翻訳に失敗しました。しばらくしてからどうぞ。")
		}
		p.cache.Put(tgt.Code, text, out)
	}

	msg := tgui.JoinH(" ", tgui.Raw(tgt.Flag), tgui.Esc(out))
	return p.reply(ctx, req, msg.String())
}
