// Package main provides the CLI entry point for the voxquery server.
//
// voxquery is a voice-first conversational data analyst: it answers natural
// language questions about a CSV dataset by generating and executing analysis
// code in a sandbox, streams a live transcript over websockets, and offloads
// long-running dataset enrichment to a background worker.
//
// # Basic Usage
//
// Start the server:
//
//	voxquery serve --config voxquery.yaml
//
// Print the effective configuration:
//
//	voxquery config show
//
// # Environment Variables
//
//   - VOXQUERY_CONFIG: Path to configuration file (default: voxquery.yaml)
//   - OPENAI_API_KEY: referenced from the config file via ${OPENAI_API_KEY}
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/voxquery/voxquery/internal/agent"
	"github.com/voxquery/voxquery/internal/broadcast"
	"github.com/voxquery/voxquery/internal/config"
	"github.com/voxquery/voxquery/internal/dataset"
	"github.com/voxquery/voxquery/internal/enrichment"
	"github.com/voxquery/voxquery/internal/gateway"
	"github.com/voxquery/voxquery/internal/mail"
	"github.com/voxquery/voxquery/internal/observability"
	"github.com/voxquery/voxquery/internal/report"
	"github.com/voxquery/voxquery/internal/sandbox"
	"github.com/voxquery/voxquery/internal/sessions"
	"github.com/voxquery/voxquery/internal/sheets"
	"github.com/voxquery/voxquery/internal/tools/analysis"
	"github.com/voxquery/voxquery/pkg/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "voxquery.yaml"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "voxquery",
		Short:        "voxquery - conversational data analysis server",
		Long:         "voxquery answers questions about a CSV dataset by generating and\nrunning analysis code in a sandbox, with live transcript streaming,\nspreadsheet export, and background dataset enrichment.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildConfigCmd())
	return rootCmd
}

// resolveConfigPath applies the flag, then the environment, then the default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("VOXQUERY_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the voxquery server",
		Long: `Start the voxquery server.

The server will:
1. Load configuration from the specified file (or voxquery.yaml)
2. Initialize the dataset resolver, sandbox and session registry
3. Start the background enrichment worker
4. Start the HTTP server for uploads, chat turns and websocket streams

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	var configPath string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after defaults and includes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOrDefault(resolveConfigPath(configPath))
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			cmd.Print(string(out))
			return nil
		},
	}
	show.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")

	cmd.AddCommand(show)
	return cmd
}

// loadOrDefault falls back to built-in defaults when no config file exists,
// so the server can run against the bundled sample dataset with zero setup.
func loadOrDefault(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := observability.LogConfig{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		RedactPatterns: cfg.Logging.RedactPatterns,
	}
	if debug {
		logCfg.Level = "debug"
	}
	logger := observability.NewLogger(logCfg)

	logger.Info(ctx, "starting voxquery",
		"version", version,
		"commit", commit,
		"config", configPath,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	resolver := dataset.NewResolver(cfg.Uploads.Dir, workDir, logger)
	executor := sandbox.NewExecutor(resolver, cfg.Sandbox.ArtifactsDir,
		time.Duration(cfg.Sandbox.TimeoutSeconds)*time.Second, logger, metrics)

	transcript := broadcast.NewHub[models.TranscriptEvent](256)
	transcript.OnDeliver(func() { metrics.BroadcastEvents.WithLabelValues("transcript", "delivered").Inc() })
	transcript.OnDrop(func() { metrics.BroadcastEvents.WithLabelValues("transcript", "dropped").Inc() })
	enrichHub := broadcast.NewHub[models.EnrichmentEvent](256)
	enrichHub.OnDeliver(func() { metrics.BroadcastEvents.WithLabelValues("enrichment", "delivered").Inc() })
	enrichHub.OnDrop(func() { metrics.BroadcastEvents.WithLabelValues("enrichment", "dropped").Inc() })
	sessionStore := sessions.NewRegistry()
	sessionStore.OnCountChange(func(n int) { metrics.ActiveSessions.Set(float64(n)) })

	var sheetSvc sheets.Service
	if cfg.Sheets.CredentialsFile != "" {
		creds, err := os.ReadFile(cfg.Sheets.CredentialsFile)
		if err != nil {
			return fmt.Errorf("failed to read sheets credentials: %w", err)
		}
		google, err := sheets.NewGoogle(ctx, creds)
		if err != nil {
			return fmt.Errorf("failed to initialize sheets client: %w", err)
		}
		sheetSvc = google
		logger.Info(ctx, "spreadsheet export enabled", "backend", "google")
	} else {
		sheetSvc = sheets.NewMemory()
		logger.Info(ctx, "spreadsheet export enabled", "backend", "memory")
	}

	classifier := enrichment.NewOpenAIClassifier(cfg.OpenAI.APIKey, cfg.OpenAI.ClassifierModel, metrics)
	runner := enrichment.NewRunner(classifier, sheetSvc, enrichHub,
		cfg.Enrichment.RunnerConfig(), logger, metrics)
	runner.Start(ctx)

	router := agent.NewRouter(transcript, sheetSvc, sessionStore, logger, metrics)

	toolRegistry := agent.NewToolRegistry()
	toolRegistry.Register(analysis.NewExecuteCodeTool(executor, router))
	toolRegistry.Register(analysis.NewEnrichTool(runner, resolver))

	clientCfg := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAI.BaseURL
	}
	llmClient := openai.NewClientWithConfig(clientCfg)

	runtime := agent.NewRuntime(llmClient, toolRegistry, sessionStore,
		agent.RuntimeOptions{Model: cfg.OpenAI.Model}, logger, metrics)

	var mailer mail.Sender
	if cfg.Mail.Enabled() {
		smtp, err := mail.NewSMTPSender(cfg.Mail, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize mail sender: %w", err)
		}
		mailer = smtp
		logger.Info(ctx, "session reports enabled", "recipient", cfg.Mail.Recipient)
	}

	uploads, err := gateway.NewUploadsManager(cfg.Uploads, transcript, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize uploads: %w", err)
	}
	if err := uploads.Start(ctx); err != nil {
		return fmt.Errorf("failed to start uploads watcher: %w", err)
	}

	server, err := gateway.NewServer(gateway.Deps{
		Config:     cfg,
		Sessions:   sessionStore,
		Turns:      runtime,
		Transcript: transcript,
		Enrichment: enrichHub,
		Uploads:    uploads,
		Resolver:   resolver,
		Summarizer: report.NewSummarizer(llmClient, cfg.OpenAI.SummaryModel, logger, metrics),
		Renderer:   report.NewMarkdownRenderer(),
		Mailer:     mailer,
		Gatherer:   registry,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	logger.Info(ctx, "voxquery started", "addr", server.Addr())

	<-ctx.Done()
	logger.Info(context.Background(), "shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "server shutdown", "error", err)
	}

	logger.Info(context.Background(), "voxquery stopped")
	return nil
}
