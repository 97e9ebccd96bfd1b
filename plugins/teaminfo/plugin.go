// Package teaminfoplugin answers questions about the team itself:
// a configured roster and an ad-hoc random team split of whoever is
// active in the thread.
package teaminfoplugin

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"tomobot/internal/plugin"
	kit "tomobot/internal/transport"
	"tomobot/pkg/tgui"
)

// splitSourceLimit bounds how many recent senders feed a split.
const splitSourceLimit = 50

type Member struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type Config struct {
	TeamName string   `json:"team_name"`
	Members  []Member `json:"members"`
}

type Plugin struct {
	plugin.PluginBase

	mu  sync.RWMutex
	cfg Config
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "teaminfo" }

func (p *Plugin) Init(ctx context.Context, deps plugin.PluginDeps) error {
	p.InitBase(deps, p.Name())
	return nil
}

func (p *Plugin) OnConfigChange(ctx context.Context, raw []byte) error {
	cfg, err := plugin.DecodePluginConfig[Config](raw)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	return nil
}

func (p *Plugin) config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
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
			Route:       "team info",
			Description: "チーム情報を表示",
			Usage:       "/team info",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdInfo,
		},
		{
			Route:       "team split",
			Description: "スレッド参加者をランダムにチーム分け",
			Usage:       "/team split <チーム数>",
			Access:      plugin.AccessEveryone,
			Handle:      p.cmdSplit,
		},
	}
}

func (p *Plugin) reply(ctx context.Context, req *plugin.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

func (p *Plugin) cmdInfo(ctx context.Context, req *plugin.Request) error {
	cfg := p.config()
	if len(cfg.Members) == 0 {
		return p.reply(ctx, req, "チーム情報が設定されていません。")
	}
	name := cfg.TeamName
	if name == "" {
		name = "チーム"
	}
	b := tgui.New().Title("👥", name)
	for _, m := range cfg.Members {
		b.KV(m.Name, m.Role)
	}
	_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdSplit(ctx context.Context, req *plugin.Request) error {
	if len(req.Args) != 1 {
		return p.reply(ctx, req, "使い方: <code>/team split &lt;チーム数&gt;</code>")
	}
	n, err := strconv.Atoi(req.Args[0])
	if err != nil || n < 2 || n > 10 {
		return p.reply(ctx, req, "⚠️ チーム数は 2〜10 で指定してください。")
	}
	if !req.Chat.IsThread() {
		return p.reply(ctx, req, "⚠️ チーム分けはスレッド内で実行してください。")
	}

	participants, err := req.Adapter.History(ctx, req.Chat, splitSourceLimit)
	if err != nil || len(participants) == 0 {
		return p.reply(ctx, req, "⚠️ 最近の参加者が見つかりませんでした。")
	}
	names := make([]string, 0, len(participants))
	for _, part := range participants {
		if part.IsBot {
			continue
		}
		if part.Username != "" {
			names = append(names, "@"+part.Username)
		} else {
			names = append(names, fmt.Sprintf("user %d", part.UserID))
		}
	}
	if len(names) < n {
		return p.reply(ctx, req, fmt.Sprintf("⚠️ 参加者が %d 人しかいないため %d チームに分けられません。", len(names), n))
	}

	teams := splitTeams(names, n)
	b := tgui.New().Title("🎲", "チーム分け")
	for i, team := range teams {
		b.Section(fmt.Sprintf("チーム %d", i+1))
		b.Line(strings.Join(team, " "))
	}
	_, err = b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

// splitTeams shuffles names and deals them round-robin into n teams.
func splitTeams(names []string, n int) [][]string {
	shuffled := append([]string(nil), names...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	teams := make([][]string, n)
	for i, name := range shuffled {
		teams[i%n] = append(teams[i%n], name)
	}
	return teams
}
