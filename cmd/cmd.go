// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// serveCommand runs the HTTP and WebSocket server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the processing server (GET /health, GET /ws/process)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides server.port)",
			},
		},
		Action: r.Serve,
	}
}

// processCommand is the terminal client for a running server.
func processCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "Process a local file or URL through a running server",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "input",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Usage: "Server base URL (default: derived from server.host and server.port)",
			},
			&cli.StringFlag{
				Name:    "action",
				Aliases: []string{"a"},
				Usage:   "create_course or create_summary (URLs always download first)",
				Value:   "create_course",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: md, txt or json",
				Value:   "md",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file or directory",
			},
			&cli.StringFlag{
				Name:  "decision",
				Usage: "Answer after a URL download without prompting: create_course, create_summary or done",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Render progress with the interactive terminal UI",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print every server message as a JSON line",
			},
		},
		Action: r.Process,
	}
}

// batchCommand processes several inputs without a server.
func batchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "Process several files or URLs headlessly",
		ArgsUsage: "<input> [input...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "action",
				Aliases: []string{"a"},
				Usage:   "create_course, create_summary or download_video",
				Value:   "create_course",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: md, txt or json",
				Value:   "md",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: paths.output_folder)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Concurrent sessions",
				Value:   2,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Session starts per second",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "manifest",
				Usage: "Write a .json or .csv summary of the batch to this path",
			},
		},
		Action: r.Batch,
	}
}

// historyCommand inspects recorded sessions.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect finished sessions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List finished sessions, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status: completed, error or abandoned",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of rows",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
					&cli.BoolFlag{
						Name:  "tui",
						Usage: "Browse history interactively",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:  "show",
				Usage: "Show one session",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.HistoryShow,
			},
			{
				Name:  "purge",
				Usage: "Delete sessions older than a duration",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Age cutoff, e.g. 720h",
						Value: 30 * 24 * time.Hour,
					},
				},
				Action: r.HistoryPurge,
			},
		},
	}
}

// setupCommand handles setup operations for configuration, database and tools.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if missing, initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Action: r.SetupRollback,
			},
			{
				Name:   "tools",
				Usage:  "Check that ffmpeg, whisper.cpp and yt-dlp are installed",
				Action: r.SetupTools,
			},
		},
	}
}
