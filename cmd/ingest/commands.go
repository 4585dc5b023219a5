package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ragvault/internal/app"
	"ragvault/pkg/auth"
	"ragvault/pkg/config"
	"ragvault/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	bot      string
	citable  bool
	force    bool
	manifest string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest documents into a bot's knowledge namespace",
		Long: `Extracts, chunks and embeds local files or web pages into the vector store of one bot.
Sources are private unless --citable is given; the flag cannot be changed later without re-ingesting.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.bot, "bot", "", "Bot identifier that owns the sources")
	rootCmd.PersistentFlags().BoolVar(&opts.citable, "citable", false, "Allow answers to cite these sources")
	rootCmd.PersistentFlags().BoolVar(&opts.force, "force", false, "Re-ingest files whose content has not changed")
	rootCmd.PersistentFlags().StringVar(&opts.manifest, "manifest", ".ingest_manifest.json", "File recording what was already ingested")

	rootCmd.AddCommand(newFileCommand(opts))
	rootCmd.AddCommand(newURLCommand(opts))
	rootCmd.AddCommand(newTokenCommand())

	return rootCmd
}

func newFileCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "file <path>...",
		Short: "Ingest local files or directories (pdf, docx, txt, md, html, images)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPaths(args)
			if err != nil {
				return err
			}
			return withRunner(cmd, opts, func(ctx context.Context, r *runner) error {
				for _, path := range paths {
					if err := r.ingestFile(ctx, path); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newURLCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "url <url>...",
		Short: "Crawl and ingest web pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, opts, func(ctx context.Context, r *runner) error {
				for _, u := range args {
					if err := r.ingestURL(ctx, u); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newTokenCommand() *cobra.Command {
	var user, bot string
	var admin bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for the query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			role := auth.RoleUser
			if admin {
				role = auth.RoleAdmin
			}
			token, err := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration).GenerateToken(user, bot, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User identifier")
	cmd.Flags().StringVar(&bot, "bot", "", "Bot identifier")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant the admin role (enables internal privacy mode)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("bot")
	return cmd
}

// withRunner builds the core components, runs fn and saves the manifest
// even when fn fails part way.
func withRunner(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *runner) error) error {
	if opts.bot == "" {
		return fmt.Errorf("--bot is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(cfg.Logger.Level, logger.FormatConsole); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	if cfg.VectorStore.Backend == app.BackendMemory {
		appLogger.Warn("Memory backend selected, ingested sources are discarded on exit")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := app.Build(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer core.Close()

	manifest, err := loadManifest(opts.manifest)
	if err != nil {
		appLogger.Warn("Failed to load manifest, every input will be ingested", zap.Error(err))
		manifest = newManifest(opts.manifest)
	}

	r := &runner{
		sources:  core.Ingestion,
		manifest: manifest,
		bot:      opts.bot,
		citable:  opts.citable,
		force:    opts.force,
		out:      cmd.OutOrStdout(),
		logger:   appLogger,
	}
	runErr := fn(ctx, r)

	if err := manifest.Save(); err != nil {
		appLogger.Warn("Failed to save manifest", zap.Error(err))
	}
	return runErr
}
