package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/supportbot/internal/api"
	"github.com/kalambet/supportbot/internal/composer"
	"github.com/kalambet/supportbot/internal/config"
	"github.com/kalambet/supportbot/internal/faq"
	"github.com/kalambet/supportbot/internal/llm"
	"github.com/kalambet/supportbot/internal/logging"
	"github.com/kalambet/supportbot/internal/metrics"
	"github.com/kalambet/supportbot/internal/storage"
	"github.com/kalambet/supportbot/internal/support"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the supportbot server (foreground)",
	Long: `Start the HTTP API and chat page.

With --mcp the support tools are also served over MCP on stdin/stdout, so
the binary can be registered as an MCP server by an agent host. Logs always
go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running supportbot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show supportbot status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "supportbot.pid")
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

// conversationStore is what the server needs from either storage backend.
type conversationStore interface {
	support.Store
	Close() error
}

func openStore(ctx context.Context, cfg config.Config) (conversationStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		return storage.OpenPostgres(ctx, cfg.Storage.DatabaseURL)
	default:
		return storage.OpenSQLite(cfg.Storage.DataDir)
	}
}

// newLLMClient builds the client for the configured provider. It returns
// nil without an error when no credential is configured.
func newLLMClient(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*llm.Client, error) {
	if !cfg.LLMEnabled() {
		logger.Warn().
			Str("provider", cfg.LLM.Provider).
			Str("env", cfg.CredentialHint()).
			Msg("no LLM credential configured, questions will be refused")
		return nil, nil
	}

	var gen llm.Generator
	switch cfg.LLM.Provider {
	case config.ProviderOpenRouter:
		gen = llm.NewOpenRouter(cfg.LLM.OpenRouterAPIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	default:
		g, err := llm.NewGemini(ctx, llm.GeminiOptions{
			APIKey:  cfg.LLM.GeminiAPIKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		gen = g
	}
	return llm.NewClient(gen, cfg.LLM.Provider, cfg.LLM.Timeout, logger), nil
}

// newRouter mounts the support API next to the metrics endpoint.
func newRouter(svc *support.Service, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.Mount("/", api.NewSupportHandler(svc, logger))
	return r
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "supportbot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	metrics.MustRegister()

	// Refuse to start twice against the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(localURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("supportbot is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("supportbot is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing storage")
		}
	}()
	logger.Info().Str("driver", cfg.Storage.Driver).Msg("storage ready")

	faqs := faq.Open(cfg.FAQ.Path, logger)
	metrics.SetFAQEntries(faqs.Len())
	logger.Info().Str("path", cfg.FAQ.Path).Int("entries", faqs.Len()).Msg("FAQs loaded")

	client, err := newLLMClient(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}

	svc := support.NewService(store, faqs, composer.New(), client, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr()).Bool("llm_available", svc.LLMAvailable()).Msg("supportbot listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(svc, version))
		g.Go(func() error {
			logger.Info().Msg("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
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
		printError("supportbot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop supportbot (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to supportbot (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	client.httpClient.Timeout = 2 * time.Second

	h, err := client.health(ctx)
	switch {
	case err != nil:
		printStatus("Server", "stopped")
	case h.LLMAvailable:
		printStatus("Server", "running at %s", client.baseURL)
		printStatus("LLM", "available (%s)", h.Provider)
	default:
		printStatus("Server", "running at %s", client.baseURL)
		printStatus("LLM", "unavailable, set %s", cfg.CredentialHint())
	}

	printStatus("Provider", "%s", cfg.LLM.Provider)
	printStatus("Model", "%s", cfg.LLM.Model)
	printStatus("Storage", "%s", cfg.Storage.Driver)
	if cfg.Storage.Driver == config.DriverSQLite {
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
	}
	printStatus("FAQ file", "%s", cfg.FAQ.Path)
	return nil
}
