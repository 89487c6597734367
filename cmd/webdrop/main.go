package main

import (
	"log/slog"

	"github.com/BioHazard786/webdrop/internal/commands"
	"github.com/BioHazard786/webdrop/internal/logging"
)

func main() {
	// progress is drawn on the terminal, so only errors are logged by default
	logging.Init(slog.LevelError)
	commands.Execute()
}
