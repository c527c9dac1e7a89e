package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hpungsan/bodypress/internal/config"
	"github.com/hpungsan/bodypress/internal/engine"
	"github.com/hpungsan/bodypress/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"capture": true, "captures": true, "show": true, "delete": true,
	"export": true, "import": true, "refresh": true, "journal": true,
	"annotate": true, "ai": true, "schedule": true, "stats": true,
	"daemon": true, "serve": true, "help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _               _
  | |__   ___   __| |_   _ _ __  _ __ ___  ___ ___
  | '_ \ / _ \ / _' | | | | '_ \| '__/ _ \/ __/ __|
  | |_) | (_) | (_| | |_| | |_) | | |  __/\__ \__ \
  |_.__/ \___/ \__,_|\__, | .__/|_|  \___||___/___/
                     |___/|_|

  Passive life journal

  Usage: bodypress <command> [options]
         bodypress --help

  MCP server mode requires piped input.`)
}

// baseDir returns $BODYPRESS_HOME or ~/.bodypress.
func baseDir() (string, error) {
	if dir := os.Getenv("BODYPRESS_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".bodypress"), nil
}

// setupLogging points the global logger at w with the configured level and format.
func setupLogging(cfg *config.Config, w io.Writer) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"})
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before opening the store
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode() && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'bodypress --help' for usage.\n")
		os.Exit(1)
	}

	dir, err := baseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg, os.Stderr)

	ctx := context.Background()
	e, err := engine.New(ctx, dir, cfg, engine.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	code := 0
	if isCLIMode() {
		if err := newCLIApp(e).Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			code = 1
		}
	} else if err := mcp.Run(e, Version); err != nil {
		// MCP server mode (default)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		code = 1
	}

	if err := e.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
	os.Exit(code)
}
