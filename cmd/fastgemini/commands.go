package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/blockmind/fastgemini/internal/agent"
	"github.com/blockmind/fastgemini/internal/cache"
	"github.com/blockmind/fastgemini/internal/config"
	"github.com/blockmind/fastgemini/internal/gemini"
	"github.com/blockmind/fastgemini/internal/observability"
	"github.com/blockmind/fastgemini/internal/session"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "fastgemini",
		Short:         "Agentic tool-calling loop for Gemini",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")

	root.AddCommand(
		newChatCmd(&configPath),
		newCachesCmd(&configPath),
		newSchemaCmd(),
	)
	return root
}

// loadConfig reads the config file when one is given, otherwise starts from
// defaults with the API key taken from the environment.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := config.Default()
	cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	return cfg, nil
}

type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	gateway *gemini.Gateway
	caches  *cache.Manager
	client  *agent.Client
	storage session.ChatStorage
	closers []func() error
}

func (r *runtime) close() {
	for _, fn := range r.closers {
		_ = fn()
	}
}

// buildRuntime wires the full stack from config: logger, gateway, storage,
// cache manager, turn builder, loop client.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	gateway, err := gemini.NewGateway(ctx, gemini.Config{
		APIKey:     cfg.Gemini.APIKey,
		RetryDelay: cfg.Gemini.RetryDelay,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger, gateway: gateway}

	var storage session.ChatStorage
	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := session.NewSQLiteStorage(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, db.Close)
		storage = db
	default:
		storage = session.NewMemoryStorage()
	}
	rt.storage = storage

	rt.caches = cache.NewManager(gateway.Client(), logger)
	manager := session.NewChatManager(cfg.Agent.SystemPrompt, storage, rt.caches, logger)
	rt.client = agent.NewClient(gateway, manager, logger, metrics)
	return rt, nil
}

// toolExecutor selects the executor strategy from config: chunked (and
// optionally paced) when a batch size is set, plain fan-out otherwise.
func (r *runtime) toolExecutor() agent.ToolExecutor {
	if r.cfg.Agent.MaxBatchSize <= 0 {
		return nil // Chat falls back to the concurrent executor.
	}
	var limiter *rate.Limiter
	if r.cfg.Agent.ToolRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.cfg.Agent.ToolRateLimit), 1)
	}
	return agent.NewRateLimitedExecutor(r.cfg.Agent.MaxBatchSize, limiter, r.logger)
}

func newChatCmd(configPath *string) *cobra.Command {
	var (
		chatID    string
		model     string
		toolMode  string
		cacheName string
	)

	cmd := &cobra.Command{
		Use:   "chat [query]",
		Short: "Send a query through the agentic loop and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			if chatID == "" {
				chatID = uuid.NewString()
			}
			if model == "" {
				model = cfg.Gemini.Model
			}
			req := agent.ChatRequest{
				ChatID:        chatID,
				Query:         strings.Join(args, " "),
				Model:         model,
				Executor:      rt.toolExecutor(),
				MaxIterations: cfg.Agent.MaxIterations,
				Retries:       cfg.Agent.Retries,
				ToolMode:      session.ToolMode(toolMode),
			}
			if cacheName != "" {
				req.Cache = &cache.Config{CacheName: cacheName}
			}

			chunks, err := rt.client.Chat(cmd.Context(), req)
			if err != nil {
				return err
			}
			for chunk := range chunks {
				if chunk.Err != nil {
					return chunk.Err
				}
				fmt.Fprintln(cmd.OutOrStdout(), chunk.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&chatID, "chat-id", "", "conversation ID (random when empty)")
	cmd.Flags().StringVar(&model, "model", "", "model identifier (config default when empty)")
	cmd.Flags().StringVar(&toolMode, "tool-mode", "", "function calling mode: any or auto")
	cmd.Flags().StringVar(&cacheName, "cache", "", "cached content display name to pin")
	return cmd
}

func newCachesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caches",
		Short: "Manage Gemini cached-content entries",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List live cached-content entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			caches, err := rt.caches.ListCaches(cmd.Context())
			if err != nil {
				return err
			}
			if len(caches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No caches.")
				return nil
			}
			for _, c := range caches {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\texpires %s\n",
					c.DisplayName, c.Name, c.ExpireTime.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete [display-name]",
		Short: "Delete a cached-content entry by display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.caches.DeleteCache(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted cache %q\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		},
	}
}
