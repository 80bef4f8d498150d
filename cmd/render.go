package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cvforge/internal/artifacts"
	"cvforge/internal/coordinator"
	"cvforge/internal/rendercache"
	"cvforge/internal/renderer"
)

var renderCmd = &cobra.Command{
	Use:     "render [file]",
	Aliases: []string{"r"},
	Short:   "Render a CV to PDF once",
	Long: `Render the working CV (or the given file) through the configured render
engine and print the artifact location. Exits nonzero when the render fails.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	source := cfg.Files.WorkingCV
	if len(args) == 1 {
		source = args[0]
	}
	content, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("reading %s: %w", source, err)
	}

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

	outcome, err := coord.Submit(ctx, content)
	if err != nil {
		return err
	}
	if outcome.Failed() {
		return fmt.Errorf("render failed (%s): %s", outcome.Category, outcome.Reason)
	}

	fmt.Println("Rendered:", outcome.Artifact.Dir)
	if outcome.Artifact.PDF != "" {
		fmt.Println("PDF:     ", outcome.Artifact.PDF)
	}
	return nil
}
