// Package cmd provides the CLI entry points.
//
// Commands:
//   - serve: HTTP JSON API server
//   - migrate: run database migrations and exit
//   - add-user: provision a login account and exit
//   - version: print build information
//
// Signal handling and graceful shutdown are implemented via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Execute is the main entry point for the CLI.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "migrate":
		return runMigrate()
	case "add-user":
		return runAddUser(os.Args[2:])
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("websters - retrieval-augmented query API")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  websters serve [addr] Start the HTTP API server (default: :8000)")
	fmt.Println("  websters migrate      Apply database migrations and exit")
	fmt.Println("  websters add-user <username> <password>")
	fmt.Println("                        Create a login account and exit")
	fmt.Println("  websters --version    Show version information")
	fmt.Println("  websters --help       Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required: Gemini API key")
	fmt.Println("  DATABASE_URL       Optional: overrides postgres_* config keys")
	fmt.Println("  JWT_SECRET_KEY     Required: token signing secret")
	fmt.Println("  SERPER_API_KEY     Optional: enables web search enrichment")
	fmt.Println("  DEBUG              Optional: enable debug logging")
}
