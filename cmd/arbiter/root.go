package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbiterai/arbiter-oss/internal/governance"
	"github.com/arbiterai/arbiter-oss/pkg/agents"
	"github.com/arbiterai/arbiter-oss/pkg/compliance"
	"github.com/arbiterai/arbiter-oss/pkg/config"
	"github.com/arbiterai/arbiter-oss/pkg/layers/authority"
	"github.com/arbiterai/arbiter-oss/pkg/layers/decision"
	"github.com/arbiterai/arbiter-oss/pkg/layers/impact"
	"github.com/arbiterai/arbiter-oss/pkg/logging"
	"github.com/arbiterai/arbiter-oss/pkg/pipeline"
	"github.com/arbiterai/arbiter-oss/pkg/server"
	"github.com/arbiterai/arbiter-oss/pkg/telemetry"
)

const defaultLogLevel = "info"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "arbiter",
		Short: "Agent execution and enrichment pipeline",
		Long: `Arbiter runs agent cores behind a governed execution pipeline:
circuit breaking, input normalization and validation, a fail-closed
compliance gate, then decision, authority, reason-code, business-impact
and audit enrichment, all returned in one structured envelope.`,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "Enable human-readable console logging")

	rootCmd.AddCommand(newServeCmd(), newExecCmd(), newHealthCmd())
	return rootCmd
}

// setup loads configuration and builds the logger shared by all subcommands.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, nil, err
	}
	pretty, err := cmd.Flags().GetBool("pretty")
	if err != nil {
		return nil, nil, err
	}

	cfg := config.Default()
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
	}

	if logLevel != defaultLogLevel || cfg.Logging.Level == "" {
		cfg.Logging.Level = logLevel
	}
	if pretty {
		cfg.Logging.Pretty = true
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// buildPipelines assembles one pipeline per registered agent over shared
// breakers, resolver, and compliance gate.
func buildPipelines(cfg *config.Config, logger *slog.Logger) ([]*pipeline.Pipeline, *config.TenantResolver, error) {
	registry := agents.NewRegistry()
	for _, agent := range []agents.Agent{agents.NewSegmentationAgent(), agents.NewCreditRiskAgent()} {
		if err := registry.Register(agent); err != nil {
			return nil, nil, err
		}
	}

	breakers := governance.NewCircuitBreakerManager(governance.CircuitBreakerConfig{
		FailureThreshold:  cfg.Breaker.FailureThreshold,
		ResetTimeout:      cfg.Breaker.ResetTimeout,
		MaxHalfOpenProbes: cfg.Breaker.MaxHalfOpenProbes,
	})
	resolver := config.NewTenantResolver(cfg.Tenants)
	gate := compliance.NewRuleGate(compliance.RuleGateConfig{})

	var pipelines []*pipeline.Pipeline
	for _, id := range registry.IDs() {
		agent, _ := registry.Get(id)
		p, err := pipeline.New(pipeline.Options{
			Agent:    agent,
			Breakers: breakers,
			Resolver: resolver,
			Gate:     gate,
			Decision: decision.New(decision.Config{
				MediumRiskFraction: cfg.Decision.MediumRiskFraction,
				HighRiskFraction:   cfg.Decision.HighRiskFraction,
				ConfidenceCap:      cfg.Decision.ConfidenceCap,
				DeadlineHigh:       cfg.Decision.DeadlineHigh,
				DeadlineMedium:     cfg.Decision.DeadlineMedium,
				DeadlineLow:        cfg.Decision.DeadlineLow,
			}),
			Authority: authority.New(authority.Config{
				MinImprovement:     cfg.Authority.MinImprovement,
				MinConfidence:      cfg.Authority.MinConfidence,
				MaxRecommendations: cfg.Authority.MaxRecommendations,
				EffortWeight:       cfg.Authority.EffortWeight,
			}),
			Impact: impact.New(impact.Config{
				RevenuePerRecord: cfg.Impact.RevenuePerRecord,
				CostPerRecord:    cfg.Impact.CostPerRecord,
				Currency:         cfg.Impact.Currency,
			}),
			Budget: cfg.Budget,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build pipeline for %s: %w", id, err)
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, resolver, nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the execution pipeline over HTTP",
		RunE:  runServe,
	}
	cmd.Flags().StringP("listen", "a", "", "Address to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	listen, err := cmd.Flags().GetString("listen")
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Address = listen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: "arbiter",
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Error("Failed to flush telemetry", "error", err)
		}
	}()

	pipelines, resolver, err := buildPipelines(cfg, logger)
	if err != nil {
		return err
	}

	// Hot-reload tenant overrides when the config file changes.
	if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
		watcher, err := config.NewWatcher(configPath, resolver, logger)
		if err != nil {
			logger.Warn("Tenant config watcher disabled", "error", err)
		} else {
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("Tenant config watcher failed to start", "error", err)
			}
			defer func() {
				if err := watcher.Stop(); err != nil {
					logger.Error("Failed to stop config watcher", "error", err)
				}
			}()
		}
	}

	srv, err := server.New(server.Options{Pipelines: pipelines, Logger: logger})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting arbiter", "address", cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [input.json]",
		Short: "Run one request through the pipeline and print the envelope",
		Long: `Reads a JSON input mapping from the given file (or stdin when omitted),
executes it through the named agent's pipeline, and prints the response
envelope to stdout.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runExec,
	}
	cmd.Flags().String("agent", "customer_segmentation", "Agent to execute")
	cmd.Flags().String("tenant", "", "Tenant ID for the request")
	return cmd
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	agentID, err := cmd.Flags().GetString("agent")
	if err != nil {
		return err
	}
	tenantID, err := cmd.Flags().GetString("tenant")
	if err != nil {
		return err
	}

	var raw []byte
	if len(args) == 1 {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return fmt.Errorf("parse input: %w", err)
	}

	pipelines, _, err := buildPipelines(cfg, logger)
	if err != nil {
		return err
	}
	p, err := pipelineFor(pipelines, agentID)
	if err != nil {
		return err
	}

	reqCtx := map[string]any{}
	if tenantID != "" {
		reqCtx["tenant_id"] = tenantID
	}
	env := p.Execute(cmd.Context(), input, reqCtx)

	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")
	return out.Encode(env)
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the health descriptor for every agent pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			pipelines, _, err := buildPipelines(cfg, logger)
			if err != nil {
				return err
			}

			health := make(map[string]pipeline.Health, len(pipelines))
			for _, p := range pipelines {
				health[p.Agent().ID] = p.Health()
			}

			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			return out.Encode(health)
		},
	}
}

func pipelineFor(pipelines []*pipeline.Pipeline, agentID string) (*pipeline.Pipeline, error) {
	for _, p := range pipelines {
		if p.Agent().ID == agentID {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown agent %q", agentID)
}
