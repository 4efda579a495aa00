package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
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
	"golang.org/x/oauth2"

	"github.com/kalambet/mixtape/internal/api"
	"github.com/kalambet/mixtape/internal/catalog"
	"github.com/kalambet/mixtape/internal/config"
	"github.com/kalambet/mixtape/internal/conversation"
	"github.com/kalambet/mixtape/internal/enrich"
	"github.com/kalambet/mixtape/internal/features"
	"github.com/kalambet/mixtape/internal/metadata"
	"github.com/kalambet/mixtape/internal/playlist"
	"github.com/kalambet/mixtape/internal/profile"
	"github.com/kalambet/mixtape/internal/scoring"
	"github.com/kalambet/mixtape/internal/storage"
)

// defaultUserID scopes all state for the single local listener.
const defaultUserID = "local"

const sessionGCInterval = time.Hour

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the mixtape server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running mixtape server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mixtape system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "mixtape.pid")
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

// historyStore adapts the storage layer to the generator's history join.
type historyStore struct {
	store *storage.Store
}

func (h historyStore) Stats(ctx context.Context, userID string, catalogIDs []string) (map[string]features.ListeningStats, error) {
	return h.store.ListeningStats(ctx, userID, catalogIDs)
}

// configuredGenerator applies the configured default playlist length when the
// caller did not ask for one.
type configuredGenerator struct {
	gen           *playlist.Generator
	defaultLength int
}

func (g configuredGenerator) Generate(ctx context.Context, userID string, p profile.Profile, sctx scoring.Context, length int) ([]scoring.Result, error) {
	if length <= 0 {
		length = g.defaultLength
	}
	return g.gen.Generate(ctx, userID, p, sctx, length)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "mixtape version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cfg.Server.Token == "" {
		return fmt.Errorf("no API token configured; set MIXTAPE_API_TOKEN or add it to the secret store")
	}

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("mixtape is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("mixtape is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the recommendation pipeline.
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Catalog.OAuthToken})
	cat := catalog.New(cfg.Catalog.BaseURL, ts)
	meta := metadata.New(cfg.Metadata.BaseURL, cfg.Metadata.APIKey)
	resolver := enrich.NewResolver(store, meta, cfg.FeatureTTL())
	generator := configuredGenerator{
		gen:           playlist.NewGenerator(cat, resolver, historyStore{store: store}, scoring.NewScorer(nil)),
		defaultLength: cfg.Playlist.DefaultLength,
	}
	sessions := conversation.NewManager(store)

	appHandler := api.NewAppHandler(api.AppDeps{
		Store:     store,
		Sessions:  sessions,
		Generator: generator,
		Catalog:   cat,
		Token:     cfg.Server.Token,
		UserID:    defaultUserID,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// Start the feature-enrichment worker.
	worker := enrich.NewWorker(store, resolver, cfg.WorkerPoll())
	go worker.Run(ctx)

	// Reap expired sessions periodically. Completed sessions are kept.
	go func() {
		ticker := time.NewTicker(sessionGCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.DeleteExpiredSessions(ctx, time.Now().UTC())
				if err != nil {
					slog.Warn("session cleanup failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("expired sessions removed", "count", n)
				}
			}
		}
	}()

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     store,
		Sessions:  sessions,
		Generator: generator,
		Catalog:   cat,
		UserID:    defaultUserID,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "mixtape listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
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

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("mixtape is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop mixtape (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to mixtape (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Catalog", "%s", cfg.Catalog.BaseURL)
	printStatus("Metadata", "%s", cfg.Metadata.BaseURL)

	// Show history counts if server is running.
	if cfg.Server.Token != "" && resp != nil && resp.StatusCode == 200 {
		histResp, err := apiGet(client, serverURL+"/history?limit=100", cfg.Server.Token)
		if err == nil {
			var entries []json.RawMessage
			if json.NewDecoder(histResp.Body).Decode(&entries) == nil {
				printStatus("History", "%s tracks", countLabel(len(entries), 100))
			}
			histResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
