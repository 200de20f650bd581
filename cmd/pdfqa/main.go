package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/kirillkom/policy-query/internal/adapters/cli"
	"github.com/kirillkom/policy-query/internal/observability/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	slog.SetDefault(logging.NewCLILogger(os.Stderr, os.Getenv("LOG_LEVEL")))

	if err := cli.NewRootCommand(cli.DefaultDependencies()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
