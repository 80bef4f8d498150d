package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cvforge/internal/llm"
	"cvforge/internal/pipeline"
)

var tailorJobFile string

var tailorCmd = &cobra.Command{
	Use:     "tailor",
	Aliases: []string{"t"},
	Short:   "Tailor the master CV to a job advertisement",
	Long: `Run the tailoring workflow: parse the job advertisement, then rewrite
each CV section to match its requirements. The result is saved as the
working CV. Steps that fail are reported as warnings and leave their
section unchanged.

Requires GEMINI_API_KEY in the environment or a .env file.`,
	RunE: runTailor,
}

func init() {
	rootCmd.AddCommand(tailorCmd)

	tailorCmd.Flags().StringVar(&tailorJobFile, "job", "", "job advertisement file (default from config)")
}

func runTailor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	jobFile := cfg.Files.JobAd
	if tailorJobFile != "" {
		jobFile = tailorJobFile
	}

	masterCV, err := os.ReadFile(cfg.Files.MasterCV)
	if err != nil {
		return fmt.Errorf("reading master CV %s: %w", cfg.Files.MasterCV, err)
	}
	jobAd, err := os.ReadFile(jobFile)
	if err != nil {
		return fmt.Errorf("reading job advertisement %s: %w", jobFile, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := llm.NewGeminiClient(ctx, cfg.Pipeline.Model)
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}

	p := pipeline.New(client, logger)
	result, err := p.Tailor(ctx, masterCV, string(jobAd), func(prog pipeline.Progress) {
		fmt.Printf("[%3d%%] %s\n", prog.Percent, prog.Message)
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(cfg.Files.WorkingCV, result.WorkingCV, 0o644); err != nil {
		return fmt.Errorf("saving working CV: %w", err)
	}

	for _, warning := range result.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", warning)
	}
	fmt.Println("Tailored CV saved to", cfg.Files.WorkingCV)
	return nil
}
