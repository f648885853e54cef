package main

import (
	"log/slog"
	"os"

	"github.com/runtimeboot/runtimeboot/cmd/runtimeboot/commands"
)

func main() {
	// Structured logs go to stderr; stdout belongs to the launched application.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: commands.LogLevel,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
