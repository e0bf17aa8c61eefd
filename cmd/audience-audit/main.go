// Audience Audit: an MCP server for human-in-the-loop audience research.
//
// It walks an assistant and a marketer through validation, portrait,
// segments, pains and strategy steps, one approved artifact at a time.
//
// Usage:
//
//	audience-audit serve          # Start MCP server (stdio transport)
//	audience-audit serve --http   # Start MCP server (streamable HTTP)
//	audience-audit version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/config"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/logging"
	auditserver "github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("audience-audit v%s\n", auditserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	useHTTP := fs.Bool("http", false, "serve streamable HTTP instead of stdio")
	addr := fs.String("addr", "", "HTTP listen address (overrides http.addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	// Logs go to stderr so they don't interfere with MCP's stdio
	// transport on stdout.
	logger, err := logging.New(os.Stderr, cfg.Log.Level, logging.Format(cfg.Log.Format))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, cleanup, err := auditserver.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	if !*useHTTP {
		return server.ServeStdio(s.MCP)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Audience Audit v%s: audience research MCP server

Usage:
  audience-audit serve [--http] [--addr :8080]   Start the MCP server
  audience-audit version                         Print the version

Configuration:
  ~/.audience-audit/config.yaml (or $AUDIT_CONFIG), overridden by
  AUDIT_* environment variables and OPENAI_API_KEY.

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "audience-audit": {
        "command": "audience-audit",
        "args": ["serve"]
      }
    }
  }
`, auditserver.Version)
}
