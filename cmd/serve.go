package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cvforge/internal/artifacts"
	"cvforge/internal/coordinator"
	"cvforge/internal/llm"
	"cvforge/internal/pipeline"
	"cvforge/internal/rendercache"
	"cvforge/internal/renderer"
	"cvforge/internal/server"
	"cvforge/internal/version"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the editor and live preview server",
	Long: `Start the browser editor with live PDF preview.

Edits to the working CV, whether typed in the browser or written by an
external editor, are debounced and rendered automatically. Identical
content is never rendered twice; results are reused from the render cache.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "bind host")
	serveCmd.Flags().Int("port", 0, "bind port")
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := artifacts.NewStore(cfg.Artifacts.Root, cfg.Artifacts.Keep, logger)
	if err != nil {
		return err
	}
	coord := coordinator.New(
		rendercache.New(),
		store,
		renderer.NewCommandRenderer(cfg.Render.Command, logger),
		logger,
		coordinator.WithTimeout(cfg.Render.Timeout),
	)

	var runner *pipeline.Runner
	if os.Getenv("GEMINI_API_KEY") != "" {
		client, err := llm.NewGeminiClient(ctx, cfg.Pipeline.Model)
		if err != nil {
			logger.Warn(ctx, err, "LLM client unavailable, tailoring disabled")
		} else {
			runner = pipeline.NewRunner(pipeline.New(client, logger))
		}
	} else {
		logger.Info(ctx, "GEMINI_API_KEY not set, tailoring disabled")
	}

	srv, err := server.New(cfg, coord, store, runner, logger)
	if err != nil {
		return err
	}

	logger.Info(ctx, "starting cvforge", "version", version.Get().Short())
	return srv.Start(ctx)
}
