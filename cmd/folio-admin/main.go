package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/larsvig/folio-admin/internal/auth"
	"github.com/larsvig/folio-admin/internal/cache"
	"github.com/larsvig/folio-admin/internal/config"
	"github.com/larsvig/folio-admin/internal/document"
	"github.com/larsvig/folio-admin/internal/github"
	"github.com/larsvig/folio-admin/internal/logging"
	"github.com/larsvig/folio-admin/internal/mcpserver"
	"github.com/larsvig/folio-admin/internal/server"
	"github.com/larsvig/folio-admin/internal/session"
	"github.com/larsvig/folio-admin/internal/upload"
)

var Version = "dev"

func main() {
	// Handle hash-password subcommand before config loading.
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		hashPassword()
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func hashPassword() {
	fmt.Fprint(os.Stderr, "Enter password: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		fmt.Fprintln(os.Stderr, "no input")
		os.Exit(1)
	}
	password := scanner.Text()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("folio-admin starting",
		slog.String("version", Version),
		slog.String("repo", cfg.Owner+"/"+cfg.Repo),
		slog.String("branch", cfg.Branch),
		slog.Bool("mcp", cfg.EnableMCP),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := github.NewClient(github.Repo{
		Owner:  cfg.Owner,
		Name:   cfg.Repo,
		Branch: cfg.Branch,
		Token:  cfg.Token,
	}, logger, nil)

	repo := document.NewRepository(client, cfg.DocumentPath, logger)

	sess := session.New(repo, logger)
	sess.Start(ctx)

	previews, err := cache.Open(filepath.Join(cfg.StateDir, "previews.db"))
	if err != nil {
		return fmt.Errorf("opening preview cache: %w", err)
	}
	defer previews.Close()

	queue := upload.NewQueue(client, logger)
	queue.OnProgress = func(item upload.Item) {
		sess.Publish(session.Event{Type: session.EventUploadProgress, Data: item})
	}

	gate := auth.NewGate(cfg.AdminPasswordHash, logger)

	folders := map[string]string{
		"photos": cfg.PhotosDir,
		"svgs":   cfg.SvgsDir,
		"cv":     cfg.CVDir,
	}

	srv := server.New(ctx, client, sess, queue, previews, gate, folders, logger)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.InboxDir != "" {
		watcher := upload.NewWatcher(cfg.InboxDir, cfg.Folder(cfg.InboxFolder), queue, logger)

		g.Go(func() error {
			err := watcher.Watch(gctx)
			if gctx.Err() != nil {
				return nil
			}

			return err
		})
	}

	g.Go(func() error {
		return runHTTP(gctx, cfg, srv, sess, client, logger)
	})

	return g.Wait()
}

// runHTTP serves the admin API, with the MCP surface mounted at /mcp
// when enabled.
func runHTTP(ctx context.Context, cfg *config.Config, srv *server.Server, sess *session.Session, client *github.Client, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/", srv.Router())

	if cfg.EnableMCP {
		mcpServer := mcp.NewServer(
			&mcp.Implementation{Name: "folio-admin", Version: Version},
			nil,
		)
		mcpserver.RegisterTools(mcpServer, mcpserver.Deps{
			Session:      sess,
			Store:        client,
			PhotosFolder: cfg.PhotosDir,
			SvgsFolder:   cfg.SvgsDir,
		})

		mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return mcpServer
		}, nil)

		mux.Handle("/mcp", mcpHandler)
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("starting admin server", slog.String("listen", cfg.ListenAddr))

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		logger.Info("shutting down admin server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server error: %w", err)
	}

	return nil
}
