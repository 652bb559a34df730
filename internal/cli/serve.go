package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emonklabs/emonk/internal/archive"
	"github.com/emonklabs/emonk/internal/assistant"
	"github.com/emonklabs/emonk/internal/cli/ui"
	"github.com/emonklabs/emonk/internal/config"
	"github.com/emonklabs/emonk/internal/llm"
	"github.com/emonklabs/emonk/internal/mailer"
	"github.com/emonklabs/emonk/internal/memory"
	"github.com/emonklabs/emonk/internal/migrations"
	"github.com/emonklabs/emonk/internal/notify"
	"github.com/emonklabs/emonk/internal/scheduler"
	"github.com/emonklabs/emonk/internal/server"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Emonk server",
	Long: `Start the Emonk server: chat webhook, tick endpoint, and admin API.

The scheduler only runs when an external pulse hits POST /cron/tick —
configure your platform cron (or an uptime monitor) to call it every minute:

  curl -X POST -H "Authorization: Bearer $CRON_SECRET" http://host:8080/cron/tick`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to emonk.toml config file")
	serveCmd.Flags().String("storage-url", "", "PostgreSQL connection URL (switches backend to postgres)")
	serveCmd.Flags().String("data-dir", "", "Data directory for the json backend")
	serveCmd.Flags().Int("port", 0, "Server port (default 8080)")
	serveCmd.Flags().String("host", "", "Server host (default 0.0.0.0)")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := make(map[string]string)
	if v, _ := cmd.Flags().GetString("storage-url"); v != "" {
		flags["storage-url"] = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		flags["data-dir"] = v
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		flags["port"] = fmt.Sprintf("%d", v)
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		flags["host"] = v
	}
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)
	sp := ui.NewStepSpinner(os.Stderr, !ui.ColorEnabled())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: job store + memory store on the same backend.
	var (
		store scheduler.Store
		mem   memory.Store
		pool  *pgxpool.Pool
	)
	switch cfg.Storage.Backend {
	case "postgres":
		sp.Start("Connecting to PostgreSQL")
		pool, err = openPool(ctx, cfg)
		if err != nil {
			sp.Fail()
			return err
		}
		defer pool.Close()

		runner := migrations.NewRunner(pool, logger)
		if err := runner.Bootstrap(ctx); err != nil {
			sp.Fail()
			return err
		}
		if _, err := runner.Run(ctx); err != nil {
			sp.Fail()
			return err
		}
		store = scheduler.NewPGStore(pool)
		mem = memory.NewPGStore(pool)
		sp.Done()
	default:
		sp.Start("Opening job store")
		fs, err := scheduler.NewFileStore(cfg.Storage.DataDir)
		if err != nil {
			sp.Fail()
			return err
		}
		store = fs
		mem = memory.NewMemStore()
		sp.Done()
		logger.Warn("json backend keeps conversation memory in-process; use postgres for durability")
	}

	sp.Start("Registering job handlers")
	clock := scheduler.SystemClock{}
	registry := scheduler.NewRegistry()

	mail, err := mailer.New(mailer.Config{
		Backend:  cfg.Email.Backend,
		From:     cfg.Email.From,
		FromName: cfg.Email.FromName,
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
	}, logger)
	if err != nil {
		sp.Fail()
		return err
	}

	deps := scheduler.BuiltinDeps{
		Memory:  mem,
		Chat:    conversationPoster{mem: mem},
		Mail:    mail,
		Clock:   clock,
		Logger:  logger,
		Timeout: cfg.Scheduler.HandlerTimeout(),
	}
	if cfg.SMS.Enabled {
		pub, err := notify.NewSNSPublisher(ctx, cfg.SMS.AWSRegion)
		if err != nil {
			sp.Fail()
			return fmt.Errorf("initializing SNS: %w", err)
		}
		deps.SMS = notify.New(pub, cfg.SMS.DefaultRegion, logger)
	}
	if cfg.Archive.Enabled {
		up, err := archive.NewS3Uploader(ctx, archive.S3Config{
			Endpoint:  cfg.Archive.S3Endpoint,
			Bucket:    cfg.Archive.S3Bucket,
			Region:    cfg.Archive.S3Region,
			AccessKey: cfg.Archive.S3AccessKey,
			SecretKey: cfg.Archive.S3SecretKey,
			UseSSL:    cfg.Archive.S3UseSSL,
		})
		if err != nil {
			sp.Fail()
			return fmt.Errorf("initializing archive storage: %w", err)
		}
		deps.Archiver = up
	}
	scheduler.RegisterBuiltinHandlers(registry, deps)
	sp.Done()

	sched := scheduler.New(store, registry, clock, logger, scheduler.NewOwnerID())
	if cfg.Scheduler.LeaseDurationSecs > 0 {
		sched.SetLeaseOverride(time.Duration(cfg.Scheduler.LeaseDurationSecs) * time.Second)
	}
	jobs := scheduler.NewService(store, registry, clock, logger, cfg.Scheduler.MaxAttemptsDefault)

	model, err := newModel(cfg.LLM)
	if err != nil {
		return err
	}
	chat := assistant.New(model, mem, jobs, clock, logger, assistant.Config{
		HistoryLimit: cfg.Assistant.HistoryLimit,
		Region:       cfg.Assistant.Region,
		Timezone:     cfg.Scheduler.Timezone,
	})

	srv := server.New(cfg, logger, sched, jobs, registry, store, chat)

	printBanner(cfg, registry)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// conversationPoster delivers chat reminders by appending an assistant
// message to the conversation; the user sees it on their next exchange.
type conversationPoster struct {
	mem memory.Store
}

func (p conversationPoster) Post(ctx context.Context, conversationID, text string) error {
	return p.mem.AppendMessage(ctx, &memory.Message{
		ConversationID: conversationID,
		Role:           memory.RoleAssistant,
		Text:           text,
	})
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Storage.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing storage url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Storage.MaxConns)
	poolCfg.MinConns = int32(cfg.Storage.MinConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	return pool, nil
}

func newModel(cfg config.LLMConfig) (llm.Client, error) {
	switch cfg.Backend {
	case "", "script":
		return llm.NewScriptClient(), nil
	case "openai":
		return llm.NewOpenAIClient(cfg.Model, cfg.APIKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}

// newLogger builds the process logger from the logging config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func printBanner(cfg *config.Config, registry *scheduler.Registry) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "  %s %s\n", ui.BrandEmoji, ui.StyleBoldCyan.Render("Emonk"))
	fmt.Fprintf(os.Stderr, "  %s http://%s\n", ui.StyleLabel.Render("Server"), cfg.Address())
	fmt.Fprintf(os.Stderr, "  %s %s\n", ui.StyleLabel.Render("Storage"), cfg.Storage.Backend)
	fmt.Fprintf(os.Stderr, "  %s %v\n", ui.StyleLabel.Render("Handlers"), registry.Kinds())
	fmt.Fprintf(os.Stderr, "  %s POST /cron/tick every %s\n", ui.StyleLabel.Render("Pulse"), cfg.Scheduler.CadenceNote)
	fmt.Fprintln(os.Stderr)
}
