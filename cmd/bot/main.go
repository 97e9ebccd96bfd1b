package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tomobot/internal/app"
	calendarplugin "tomobot/plugins/calendar"
	privacyplugin "tomobot/plugins/privacy"
	qrplugin "tomobot/plugins/qr"
	reminderplugin "tomobot/plugins/reminder"
	tasksplugin "tomobot/plugins/tasks"
	teaminfoplugin "tomobot/plugins/teaminfo"
	translateplugin "tomobot/plugins/translate"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	privacy := privacyplugin.New()
	a.Plugins().Register(
		privacy,
		reminderplugin.New(),
		tasksplugin.New(privacy.IsPrivate),
		calendarplugin.New(privacy.IsPrivate),
		translateplugin.New(),
		qrplugin.New(),
		teaminfoplugin.New(),
	)

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	<-ctx.Done()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, app.StopShutdown)
}
