package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/broxus/fift-playground/internal/config"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for running Fift programs",
		Long: `Start an HTTP server that provides REST endpoints for running Fift.

Endpoints:
  POST   /execute                    Run code once: {"code", "withStdlib"?, "files"?}
  POST   /sessions                   Create session, returns {"session_id":"..."}
  POST   /sessions/{id}/exec         Run code in a session (files persist)
  GET    /sessions/{id}/files        List session files
  PUT    /sessions/{id}/files/{name} Store a session file (raw body)
  DELETE /sessions/{id}/files        Remove all session files
  DELETE /sessions/{id}/files/{name} Remove one session file
  DELETE /sessions/{id}              Close session
  GET    /library                    Library files with blake2b digests
  GET    /health                     Health check

Responses are JSON, or CBOR when the request sends Accept: application/cbor.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("addr", config.DefaultAddr, "Address to listen on")
	cmd.Flags().Duration("session-ttl", config.DefaultSessionTTL, "Close sessions idle for this long")
	cmd.Flags().Int("max-sessions", 0, "Maximum open sessions (0 = unlimited)")
	addSessionFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	flags := cmd.Flags()
	if flags.Changed("addr") {
		a.cfg.Server.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("session-ttl") {
		a.cfg.Server.SessionTTL, _ = flags.GetDuration("session-ttl")
	}
	if flags.Changed("max-sessions") {
		a.cfg.Server.MaxSessions, _ = flags.GetInt("max-sessions")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec, err := a.executor(ctx)
	if err != nil {
		return err
	}

	sessions := newSessionManager(a.cfg.Server.SessionTTL, a.cfg.Server.MaxSessions)
	defer sessions.closeAll()
	go sessions.cleanup(ctx.Done(), a.log)

	srv, err := newServer(exec, sessions, a.cfg.Stdlib, a.log)
	if err != nil {
		return err
	}
	if srv.library, err = a.library(); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("fiftbox server listening", "addr", a.cfg.Server.Addr, "engine", a.cfg.Engine)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
