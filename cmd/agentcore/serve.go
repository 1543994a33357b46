package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentcore/internal/agentrepo"
	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/haasonsaas/agentcore/internal/llmclient"
	"github.com/haasonsaas/agentcore/internal/projectoverlay"
	"github.com/haasonsaas/agentcore/internal/sessionbuilder"
	"github.com/haasonsaas/agentcore/internal/sessioncore"
	"github.com/haasonsaas/agentcore/internal/sessionexec"
	"github.com/haasonsaas/agentcore/internal/sessiontools"
	"github.com/haasonsaas/agentcore/internal/skillrepo"
	"github.com/haasonsaas/agentcore/internal/ssehub"
)

// buildServeCmd wires every core component (store, repositories, builder,
// client manager, executor, SSE hub) and exposes a bare HTTP listener for
// manual smoke-testing: subscribe to one session's events, or post a
// message into it. There is no REST DTO layer here, per spec — this is a
// terminal-driven harness, not an API.
func buildServeCmd() *cobra.Command {
	var configPath string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session executor and a bare SSE listener",
		Example: `  agentcore serve --config agentcore.yaml --addr :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			return runServe(cmd.Context(), cfg, addr)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults are used if unset)")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address for the bare SSE/smoke-test HTTP listener")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, addr string) error {
	logger := slog.Default()

	agents, err := agentrepo.New(cfg.Agents.Dir)
	if err != nil {
		return fmt.Errorf("agent repository: %w", err)
	}
	defer agents.Close()

	skills, err := skillrepo.New(cfg.Skills.Dir)
	if err != nil {
		return fmt.Errorf("skill repository: %w", err)
	}
	defer skills.Close()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		if err := agents.Watch(watchCtx); err != nil {
			logger.Warn("agent repository watch stopped", "error", err)
		}
	}()
	go func() {
		if err := skills.Watch(watchCtx); err != nil {
			logger.Warn("skill repository watch stopped", "error", err)
		}
	}()

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	defer closeStore()

	locker := sessioncore.NewLocalLocker(cfg.Timeout.LockAcquire)
	hub := ssehub.New(logger)
	builder := sessionbuilder.New(agents, skills)

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	factory := func(clientCfg *sessionbuilder.ClientConfig) llmclient.LLMClient {
		return llmclient.NewAnthropicStreamClient(clientCfg, apiKey, os.Getenv("ANTHROPIC_BASE_URL"))
	}
	clients := llmclient.NewManager(builder, factory)
	defer clients.Shutdown(context.Background())

	sessionsDir := filepath.Join(filepath.Dir(cfg.Agents.Dir), "sessions")
	paths := newFSPaths(store, sessionsDir)
	executor := sessionexec.New(store, locker, clients, hub, paths, logger)

	projectsDir := filepath.Join(filepath.Dir(cfg.Agents.Dir), "projects")
	overlay := projectoverlay.New(store, agents, projectsDir)

	tools, stopTools := sessiontools.New(sessiontools.Deps{
		Store:    store,
		Locker:   locker,
		Executor: executor,
		Agents:   agents,
	})
	defer stopTools()
	executor.SetDispatcher(newToolDispatcher(store, tools))
	logger.Info("registered inter-session tools", "count", len(tools))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/projects", newProjectsHandler(overlay))
	mux.HandleFunc("/sessions/", newSessionsHandler(store, hub, executor))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()
	logger.Info("agentcore serving", "addr", addr)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore constructs the configured session store and a cleanup func.
func openStore(cfg config.StoreConfig) (sessioncore.Store, func(), error) {
	switch cfg.Backend {
	case "", "memory":
		return sessioncore.NewMemoryStore(), func() {}, nil
	case "sqlite":
		store, err := sessioncore.OpenSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}
