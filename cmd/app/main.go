package main

import (
	"go.uber.org/fx"

	"github.com/Benedict-CS/line-backup-bot/config"
	"github.com/Benedict-CS/line-backup-bot/internal/app"
)

func main() {
	fx.New(
		app.CreateApp(),
		fx.StopTimeout(config.ShutdownTimeout()),
	).Run()
}
