// Package qrplugin renders QR codes into chat.
package qrplugin

import (
	"context"
	"strings"
	"unicode/utf8"

	qrcode "github.com/skip2/go-qrcode"

	"tomobot/internal/plugin"
	kit "tomobot/internal/transport"
	logx "tomobot/pkg/logx"
	"tomobot/pkg/tgui"
)

// maxInputRunes keeps the code scannable; QR capacity drops fast with
// dense payloads at this error-correction level.
const maxInputRunes = 500

const imageSize = 512

type Plugin struct {
	plugin.PluginBase
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "qr" }

func (p *Plugin) Init(ctx context.Context, deps plugin.PluginDeps) error {
	p.InitBase(deps, p.Name())
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	return p.StopBase(ctx)
}

func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{
			Route:       "qr",
			Description: "テキストをQRコードにする",
			Usage:       "/qr <テキストまたはURL>",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdQR,
		},
	}
}

func (p *Plugin) cmdQR(ctx context.Context, req *plugin.Request) error {
	text := strings.TrimSpace(strings.Join(req.RawArgs, " "))
	reply := func(msg string) error {
		_, err := req.Adapter.SendText(ctx, req.Chat, msg, &kit.SendOptions{ParseMode: "HTML"})
		return err
	}
	if text == "" {
		return reply("使い方: <code>/qr &lt;テキストまたはURL&gt;</code>")
	}
	if utf8.RuneCountInString(text) > maxInputRunes {
		return reply("⚠️ テキストが長すぎます（500文字まで）。")
	}

	png, err := qrcode.Encode(text, qrcode.Medium, imageSize)
	if err != nil {
		p.Log.Warn("qr encode failed", logx.Err(err))
		return reply("⚠️ QRコードを生成できませんでした。")
	}

	caption := tgui.TruncRunes(text, 64)
	if _, err := req.Adapter.SendPhoto(ctx, req.Chat, png, caption); err != nil {
		p.Log.Warn("qr send failed", logx.Err(err))
		return reply("⚠️ 画像を送信できませんでした。")
	}
	return nil
}
