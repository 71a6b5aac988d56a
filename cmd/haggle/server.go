package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/tessler/haggle/internal/api"
	"github.com/tessler/haggle/internal/cart"
	"github.com/tessler/haggle/internal/catalog"
	"github.com/tessler/haggle/internal/config"
	"github.com/tessler/haggle/internal/display"
	"github.com/tessler/haggle/internal/negotiation"
	"github.com/tessler/haggle/internal/ollama"
	"github.com/tessler/haggle/internal/proxy"
	"github.com/tessler/haggle/internal/reply"
	"github.com/tessler/haggle/internal/retrieval"
	"github.com/tessler/haggle/internal/router"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the haggle server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running haggle server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show haggle system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "haggle.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "haggle version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to double-start: probe the health endpoint before claiming the
	// PID file.
	pidPath := pidFilePath(cfg.Catalog.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("haggle is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("haggle is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The embedding provider being down is a degradation, not a startup
	// failure: searches fall back to the keyword leg.
	ollamaClient := ollama.New(cfg.Embedding.BaseURL)
	if !ollamaClient.IsRunning(ctx) {
		printWarning("Ollama not reachable at %s; vector search disabled", cfg.Embedding.BaseURL)
	}

	store, err := catalog.Open(cfg.Catalog.DataDir)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing catalog store", "error", err)
		}
	}()

	items, err := store.LoadItems(ctx)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	if len(items) == 0 {
		printWarning("catalog is empty; load items with 'haggle seed --file <catalog.json>'")
	}
	snap := catalog.NewSnapshot(items)
	slog.Info("catalog snapshot built", "items", snap.Len())

	embedder := retrieval.NewEmbedder(ollamaClient, cfg.Embedding.Model, cfg.EmbedTimeout())
	searcher := retrieval.NewSearcher(
		snap,
		embedder,
		cfg.Retrieval.SimilarityFloor,
		cfg.Retrieval.BM25K1,
		cfg.Retrieval.BM25B,
		cfg.Retrieval.FusionK,
		cfg.Retrieval.MaxResults,
	)

	userCart := cart.New()
	manager := negotiation.NewManager(userCart, negotiation.Params{
		TurnThreshold:   cfg.Negotiation.TurnThreshold,
		MaxDiscountCap:  cfg.Negotiation.MaxDiscountCap,
		BaseDiscountCap: cfg.Negotiation.BaseDiscountCap,
		MinDiscount:     cfg.Negotiation.MinDiscount,
		Cooldown:        cfg.CooldownDuration(),
		RudenessLimit:   cfg.Negotiation.RudenessLimit,
		SurchargeStep:   cfg.Negotiation.SurchargeStep,
		SurchargeCap:    cfg.Negotiation.SurchargeCap,
	})
	displayState := display.NewState()
	phrasebook := reply.NewPhrasebook(rand.NewSource(time.Now().UnixNano()))
	rt := router.New(manager, userCart, snap, searcher, displayState, phrasebook)

	limiter := proxy.NewLimiter(cfg.MinUpstreamInterval())
	upstream := proxy.NewClient(cfg.Upstream.APIKey, limiter)
	caller := proxy.NewCaller(upstream, cfg.Upstream.Models, cfg.Upstream.MaxRetries, 0)

	handler := api.NewChatHandler(rt, caller, phrasebook)

	// MCP tool bridge on stdio, for the upstream model's tool calls.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Snapshot: snap,
		Searcher: searcher,
		Cart:     userCart,
		Manager:  manager,
		Display:  displayState,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "haggle listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Catalog.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("haggle is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop haggle (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to haggle (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ollamaResp, err := client.Get(cfg.Embedding.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Embedding.BaseURL)
	}

	printStatus("Embed model", "%s", cfg.Embedding.Model)
	printStatus("Upstream models", "%s", strings.Join(cfg.Upstream.Models, ", "))

	if store, err := catalog.Open(cfg.Catalog.DataDir); err == nil {
		if n, err := store.Count(); err == nil {
			printStatus("Catalog items", "%d", n)
		}
		store.Close()
	}

	printStatus("Data dir", "%s", cfg.Catalog.DataDir)
	return nil
}
