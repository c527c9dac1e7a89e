package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/bodypress/internal/collect"
	"github.com/hpungsan/bodypress/internal/engine"
	"github.com/hpungsan/bodypress/internal/errors"
	"github.com/hpungsan/bodypress/internal/ops"
	"github.com/hpungsan/bodypress/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(e *engine.Engine) *cli.App {
	app := &cli.App{
		Name:    "bodypress",
		Usage:   "Passive life journal",
		Version: Version,
		Commands: []*cli.Command{
			captureCmd(e),
			capturesCmd(e),
			showCmd(e),
			deleteCmd(e),
			exportCmd(e),
			importCmd(e),
			refreshCmd(e),
			journalCmd(e),
			annotateCmd(e),
			aiCmd(e),
			scheduleCmd(e),
			statsCmd(e),
			daemonCmd(e),
			serveCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// captureCmd creates the capture command.
func captureCmd(e *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Take a capture now",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sources", Aliases: []string{"s"}, Usage: "Comma-separated sources: health,environment,location,calendar (default: all)"},
			&cli.StringFlag{Name: "note", Aliases: []string{"n"}, Usage: "Note to attach"},
			&cli.StringFlag{Name: "mood", Aliases: []string{"m"}, Usage: "Mood to attach"},
			&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
		},
		Action: func(c *cli.Context) error {
			input := ops.CaptureNowInput{Tags: parseList(c.String("tags"))}
			if c.IsSet("sources") {
				include, err := parseSources(c.String("sources"))
				if err != nil {
					return outputError(err)
				}
				input.Include = &include
			}
			if note := c.String("note"); note != "" {
				input.Note = &note
			}
			if mood := c.String("mood"); mood != "" {
				input.Mood = &mood
			}

			output, err := ops.CaptureNow(c.Context, e, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// capturesCmd creates the captures command.
func capturesCmd(e *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:  "captures",
		Usage: "List captures, newest first",
		Flags: append(processedFlags(),
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results (1-100)"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Pagination offset"},
		),
		Action: func(c *cli.Context) error {
			processed, err := processedFilter(c)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.ListCaptures(c.Context, e.DB, ops.ListCapturesInput{
				Processed: processed,
				Limit:     c.Int("limit"),
				Offset:    c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// showCmd creates the show command.
func showCmd(e *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a capture",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.FetchCapture(c.Context, e.DB, ops.FetchCaptureInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(e *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Permanently delete a capture",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.DeleteCapture(c.Context, e.DB, ops.DeleteCaptureInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(e *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export captures to a JSONL file",
		Flags: append(processedFlags(),
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (default: ~/.bodypress/exports/captures-<timestamp>.jsonl)"},
		),
		Action: func(c *cli.Context) error {
			processed, err := processedFilter(c)
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Export(c.Context, e.DB, e.ExportsDir(), e.Config, ops.ExportInput{
				Path:      c.String("path"),
				Processed: processed,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// importCmd creates the import command.
func importCmd(e *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import captures from a JSONL export",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "skip", Usage: "Collision mode: skip|error"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("path is required"))
			}
			output, err := ops.Import(c.Context, e.DB, e.ExportsDir(), e.Config, ops.ImportInput{
				Path: c.Args().First(),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// refreshCmd creates the refresh command.
func refreshCmd(e *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:      "refresh",
		Usage:     "Write or update the journal entry for a day",
		ArgsUsage: "[YYYY-MM-DD]",
		Action: func(c *cli.Context) error {
			output, err := ops.RefreshJournal(c.Context, e, ops.RefreshJournalInput{Date: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// journalCmd creates the journal command group.
func journalCmd(e *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "Read journal entries and attach notes",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show the stored entry for a day (default: today)",
				ArgsUsage: "[YYYY-MM-DD]",
				Action: func(c *cli.Context) error {
					output, err := ops.FetchJournal(c.Context, e.DB, ops.FetchJournalInput{Date: c.Args().First(), Today: e.Today()})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "list",
				Usage: "List journal entries, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results (1-100)"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Pagination offset"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ListJournals(c.Context, e.DB, ops.ListJournalsInput{Limit: c.Int("limit"), Offset: c.Int("offset")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:      "note",
				Usage:     "Set the note and mood for a day (reads the note from stdin if piped)",
				ArgsUsage: "[YYYY-MM-DD]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "note", Aliases: []string{"n"}, Usage: "Note text (empty clears)"},
					&cli.StringFlag{Name: "mood", Aliases: []string{"m"}, Usage: "Mood (empty clears)"},
				},
				Action: func(c *cli.Context) error {
					input := ops.SetJournalNoteInput{Date: c.Args().First()}
					if c.IsSet("note") {
						note := c.String("note")
						input.Note = &note
					} else if stdinHasData(c) {
						note, err := readStdin(c)
						if err != nil {
							return outputError(errors.NewInternal(err))
						}
						input.Note = &note
					}
					if c.IsSet("mood") {
						mood := c.String("mood")
						input.Mood = &mood
					}
					output, err := ops.SetJournalNote(c.Context, e, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
		},
	}
}

// annotateCmd creates the annotate command.
func annotateCmd(e *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:  "annotate",
		Usage: "Annotate every capture that has no AI metadata yet",
		Action: func(c *cli.Context) error {
			output, err := ops.AnnotatePending(c.Context, e, ops.AnnotatePendingInput{
				Progress: func(done, total int) {
					fmt.Fprintf(c.App.ErrWriter, "annotated %d/%d\n", done, total)
				},
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// aiCmd creates the ai command group.
func aiCmd(e *engine.Engine) *cli.Command {
	modelAction := func(action ops.ModelAction, usage string) *cli.Command {
		return &cli.Command{
			Name:  string(action),
			Usage: usage,
			Action: func(c *cli.Context) error {
				input := ops.ManageModelInput{Action: action}
				if action == ops.ModelDownload {
					input.Progress = func(p float64) {
						fmt.Fprintf(c.App.ErrWriter, "\rdownloading %3.0f%%", p*100)
					}
				}
				output, err := ops.ManageModel(c.Context, e, input)
				if action == ops.ModelDownload {
					fmt.Fprintln(c.App.ErrWriter)
				}
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c, output)
			},
		}
	}

	return &cli.Command{
		Name:  "ai",
		Usage: "Inference mode and on-device model",
		Subcommands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show the inference mode and model state",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "health", Usage: "Probe the active backend"},
				},
				Action: func(c *cli.Context) error {
					return outputJSON(c, ops.AIStatus(c.Context, e, ops.AIStatusInput{CheckHealth: c.Bool("health")}))
				},
			},
			{
				Name:  "health",
				Usage: "Probe the active backend",
				Action: func(c *cli.Context) error {
					return outputJSON(c, ops.AIStatus(c.Context, e, ops.AIStatusInput{CheckHealth: true}))
				},
			},
			{
				Name:      "mode",
				Usage:     "Set the inference mode",
				ArgsUsage: "<local|remote>",
				Action: func(c *cli.Context) error {
					output, err := ops.SetAIMode(c.Context, e, ops.SetAIModeInput{Mode: c.Args().First()})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			modelAction(ops.ModelDownload, "Download the on-device model"),
			modelAction(ops.ModelActivate, "Load the on-device model"),
			modelAction(ops.ModelDeactivate, "Unload the on-device model"),
			modelAction(ops.ModelDelete, "Delete the on-device model"),
		},
	}
}

// scheduleCmd creates the schedule command group.
func scheduleCmd(e *engine.Engine) *cli.Command {
	setEnabled := func(enabled bool) cli.ActionFunc {
		return func(c *cli.Context) error {
			output, err := ops.UpdateSchedule(c.Context, e, ops.UpdateScheduleInput{Enabled: &enabled})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		}
	}

	return &cli.Command{
		Name:  "schedule",
		Usage: "Background capture schedule",
		Subcommands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show the schedule and run counters",
				Action: func(c *cli.Context) error {
					output, err := ops.ScheduleStatus(c.Context, e)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{Name: "enable", Usage: "Enable background captures", Action: setEnabled(true)},
			{Name: "disable", Usage: "Disable background captures", Action: setEnabled(false)},
			{
				Name:  "set",
				Usage: "Update schedule settings",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "interval", Usage: "Minutes between captures"},
					&cli.StringFlag{Name: "sources", Usage: "Comma-separated sources to include"},
					&cli.StringFlag{Name: "quiet-start", Usage: "Quiet hours start (HH:MM)"},
					&cli.StringFlag{Name: "quiet-end", Usage: "Quiet hours end (HH:MM; equal to start disables)"},
					&cli.BoolFlag{Name: "battery-optimization", Usage: "Skip captures when the battery is low"},
					&cli.BoolFlag{Name: "notifications", Usage: "Notify after each background capture"},
				},
				Action: func(c *cli.Context) error {
					input := ops.UpdateScheduleInput{}
					if c.IsSet("interval") {
						v := c.Int("interval")
						input.IntervalMinutes = &v
					}
					if c.IsSet("sources") {
						include, err := parseSources(c.String("sources"))
						if err != nil {
							return outputError(err)
						}
						input.IncludeHealth = &include.Health
						input.IncludeEnvironment = &include.Environment
						input.IncludeLocation = &include.Location
						input.IncludeCalendar = &include.Calendar
					}
					if c.IsSet("quiet-start") {
						v := c.String("quiet-start")
						input.QuietHoursStart = &v
					}
					if c.IsSet("quiet-end") {
						v := c.String("quiet-end")
						input.QuietHoursEnd = &v
					}
					if c.IsSet("battery-optimization") {
						v := c.Bool("battery-optimization")
						input.BatteryOptimization = &v
					}
					if c.IsSet("notifications") {
						v := c.Bool("notifications")
						input.NotificationsEnabled = &v
					}
					output, err := ops.UpdateSchedule(c.Context, e, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c, output)
				},
			},
			{
				Name:  "trigger",
				Usage: "Queue one background capture now",
				Action: func(c *cli.Context) error {
					if err := ops.TriggerSchedule(c.Context, e); err != nil {
						return outputError(err)
					}
					return outputJSON(c, map[string]bool{"triggered": true})
				},
			},
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(e *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show store, schedule and inference counters",
		Action: func(c *cli.Context) error {
			output, err := ops.Stats(c.Context, e)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c, output)
		},
	}
}

// daemonCmd creates the daemon command.
func daemonCmd(e *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Run scheduled captures in the foreground until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "web", Usage: "Also serve the web view"},
			&cli.StringFlag{Name: "bind", Usage: "Web bind address (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "Web port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := e.Resume(ctx); err != nil {
				return outputError(err)
			}
			cfg, err := e.Scheduler.Config(ctx)
			if err != nil {
				return outputError(err)
			}
			log.Info().Bool("enabled", cfg.Enabled).Int("interval_minutes", cfg.IntervalMinutes).Msg("daemon started")

			g, gctx := errgroup.WithContext(ctx)
			if c.Bool("web") {
				srv := web.NewServer(e, Version, pick(c.String("bind"), e.Config.WebBind), pickInt(c.Int("port"), e.Config.WebPort))
				g.Go(func() error { return web.Run(gctx, srv) })
			}
			g.Go(func() error {
				<-gctx.Done()
				return nil
			})
			if err := g.Wait(); err != nil {
				return outputError(errors.NewInternal(err))
			}
			log.Info().Msg("daemon stopping")
			return nil
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(e *engine.Engine) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the read-only web view",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "Port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := web.NewServer(e, Version, pick(c.String("bind"), e.Config.WebBind), pickInt(c.Int("port"), e.Config.WebPort))
			if err := web.Run(ctx, srv); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON writes result to the app's stdout as indented JSON.
func outputJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if pErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", pErr.Code, pErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// processedFlags are the shared --processed/--unprocessed filters.
func processedFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "processed", Usage: "Only captures already folded into a journal entry"},
		&cli.BoolFlag{Name: "unprocessed", Usage: "Only captures not yet folded into a journal entry"},
	}
}

func processedFilter(c *cli.Context) (*bool, error) {
	p, u := c.Bool("processed"), c.Bool("unprocessed")
	switch {
	case p && u:
		return nil, errors.NewInvalidRequest("--processed and --unprocessed are mutually exclusive")
	case p:
		return &p, nil
	case u:
		v := false
		return &v, nil
	}
	return nil, nil
}

// parseSources turns "health,location" into an Include.
func parseSources(s string) (collect.Include, error) {
	var inc collect.Include
	for _, name := range parseList(s) {
		switch strings.ToLower(name) {
		case "health":
			inc.Health = true
		case "environment":
			inc.Environment = true
		case "location":
			inc.Location = true
		case "calendar":
			inc.Calendar = true
		default:
			return inc, errors.NewInvalidRequest(fmt.Sprintf("unknown source %q (want health, environment, location, calendar)", name))
		}
	}
	return inc, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData(c *cli.Context) bool {
	f, ok := c.App.Reader.(*os.File)
	if !ok {
		return c.App.Reader != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin(c *cli.Context) (string, error) {
	data, err := io.ReadAll(c.App.Reader)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseList splits a comma-separated string, dropping blanks.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func pickInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
