// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotchat/internal/formatter"
	"github.com/desertthunder/spotchat/internal/tasks"
)

// app builds the root command.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:     "spotchat",
		Usage:    "Chat with your Spotify listening data",
		Version:  "0.1.0",
		Writer:   r.output,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, loginCommand, logoutCommand, chatCommand, searchCommand, metricsCommand,
		playlistsCommand, exportCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

func prettyFlag() cli.Flag {
	return &cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output", Value: true}
}

// serveCommand runs the web service.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web service (login, chat and JSON API)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Address to listen on (overrides server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (overrides server.port)",
			},
		},
		Action: r.Serve,
	}
}

// loginCommand authenticates the command line user.
func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in to Spotify in the browser (PKCE)",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the browser callback",
				Value: loginTimeout,
			},
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Print the login URL instead of opening a browser",
			},
		},
		Action: r.Login,
	}
}

func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Forget the stored Spotify login",
		Action: r.Logout,
	}
}

// chatCommand answers one message, or opens the TUI without arguments.
func chatCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Aliases:   []string{"ui", "tui"},
		Usage:     "Ask about your music; without a message the interactive TUI starts",
		ArgsUsage: "[message...]",
		Action:    r.Chat,
	}
}

// searchCommand runs an advanced catalog search.
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the Spotify catalog with field filters",
		ArgsUsage: "[query...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "all, artists, tracks, albums or playlists", Value: "all"},
			&cli.StringFlag{Name: "genre", Usage: "Genre filter"},
			&cli.StringFlag{Name: "artist", Usage: "Artist filter"},
			&cli.StringFlag{Name: "album", Usage: "Album filter"},
			&cli.StringFlag{Name: "track", Usage: "Track filter"},
			&cli.IntFlag{Name: "year", Usage: "Exact release year"},
			&cli.IntFlag{Name: "from-year", Usage: "Release year range start"},
			&cli.IntFlag{Name: "to-year", Usage: "Release year range end"},
			&cli.StringFlag{Name: "popularity", Usage: "high, medium or low (tracks only)"},
			&cli.StringFlag{Name: "market", Usage: "ISO country code"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Results per type (1-50)", Value: 10},
			jsonFlag(),
			prettyFlag(),
		},
		Action: r.Search,
	}
}

func metricsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "Show an artist's popularity and follower metrics",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id"},
		},
		Flags:  []cli.Flag{jsonFlag(), prettyFlag()},
		Action: r.Metrics,
	}
}

func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "List your Spotify playlists",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of playlists to return",
				Value: 50,
			},
			jsonFlag(),
			prettyFlag(),
		},
		Action: r.Playlists,
	}
}

// exportCommand writes playlists to disk.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export playlists to files (all of your playlists when no IDs are given)",
		ArgsUsage: "[playlist-id...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Export format: " + strings.Join(formatter.Formats, ", "),
				Value:   formatter.FormatJSON,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: spotify_export_{epoch})",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent writers",
				Value: tasks.DefaultWorkers,
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Playlist fetches per second",
				Value: tasks.DefaultRateLimit,
			},
		},
		Action: r.Export,
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a config.toml from the built-in template",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   defaultConfigPath,
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the sqlite database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   defaultConfigPath,
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}
