package main

import (
	"github.com/minescope/backend/internal/server"
	"github.com/minescope/backend/internal/util"
	"github.com/minescope/backend/pkg/logger"
	"github.com/minescope/backend/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
