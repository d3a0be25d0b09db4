// Command aptracker keeps a tracker connection to an Archipelago multiworld
// server and exposes what it receives.
//
// It supports two modes:
//  1. default – runs the connection supervisor plus the HTTP server exposing
//     the REST API, WebSocket event feed, /metrics and an /mcp endpoint
//  2. "mcp" – runs an MCP stdio server against an existing tracker API, or
//     starts an internal one if none is reachable
//
// Every flag can also be set through the environment or a .env file.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

// Version information
const (
	Version = "0.3.0"
	AppName = "Archipelago Tracker"
)

// main loads .env and runs the command line.
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newCommand builds the root command and its subcommands.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "aptracker",
		Usage:   "Track an Archipelago multiworld slot",
		Version: Version,
		Flags: []cli.Flag{
			// Archipelago server
			&cli.StringFlag{
				Name:    "ap-host",
				Usage:   "Archipelago server host",
				Value:   "127.0.0.1",
				Sources: cli.EnvVars("AP_HOST"),
			},
			&cli.StringFlag{
				Name:    "ap-port",
				Usage:   "Archipelago server port",
				Value:   "38281",
				Sources: cli.EnvVars("AP_PORT"),
			},
			&cli.StringFlag{
				Name:    "ap-slot",
				Usage:   "Slot name; when set the tracker connects on startup",
				Sources: cli.EnvVars("AP_SLOT"),
			},
			&cli.StringFlag{
				Name:    "ap-password",
				Usage:   "Room password",
				Sources: cli.EnvVars("AP_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "game",
				Usage:   "Game announced in the handshake (empty for a tag-only tracker)",
				Sources: cli.EnvVars("AP_GAME"),
			},
			&cli.StringFlag{
				Name:    "protocol-version",
				Usage:   "Protocol version announced in the handshake",
				Value:   "5.0.0",
				Sources: cli.EnvVars("AP_PROTOCOL_VERSION"),
			},
			&cli.BoolFlag{
				Name:    "lenient",
				Usage:   "Pass unknown server commands through instead of dropping the batch",
				Sources: cli.EnvVars("AP_LENIENT"),
			},
			&cli.DurationFlag{
				Name:    "handshake-timeout",
				Usage:   "Bound on the WebSocket opening handshake (0 keeps the library default)",
				Sources: cli.EnvVars("AP_HANDSHAKE_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "history-size",
				Usage:   "Number of server messages kept in memory",
				Value:   1000,
				Sources: cli.EnvVars("TRACKER_HISTORY_SIZE"),
			},

			// Tracker API
			&cli.StringFlag{
				Name:    "host",
				Usage:   "HTTP server host",
				Value:   "localhost",
				Sources: cli.EnvVars("TRACKER_HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "HTTP server port",
				Value:   8080,
				Sources: cli.EnvVars("TRACKER_PORT"),
			},

			// Logging
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("DEBUG"),
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Also write JSON logs to this rotated file",
				Sources: cli.EnvVars("LOG_FILE"),
			},

			// Ngrok
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "Enable ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "Ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "Custom ngrok domain (optional)",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
		},
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:  "mcp",
				Usage: "Run an MCP stdio server backed by the tracker API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "api-url",
						Usage:   "Tracker API to proxy to; an internal one is started if it is unreachable",
						Value:   "http://localhost:8080",
						Sources: cli.EnvVars("TRACKER_API_URL"),
					},
				},
				Action: runStdioMCP,
			},
			{
				Name:  "version",
				Usage: "Show version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(cmd.Root().Writer, "%s v%s\n", AppName, Version)
					return nil
				},
			},
		},
	}
}
