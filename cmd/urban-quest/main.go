package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nachoal/urban-quest/capture"
	"github.com/nachoal/urban-quest/config"
	"github.com/nachoal/urban-quest/internal/logging"
	"github.com/nachoal/urban-quest/session"
	"github.com/nachoal/urban-quest/tui"
	"github.com/nachoal/urban-quest/vision"
)

var (
	// Flags
	imagePath string
	theme     string

	configManager *config.Manager
	logger        = zap.NewNop()

	// Root command
	rootCmd = &cobra.Command{
		Use:               "urban-quest",
		Short:             "Ask about the places you photograph",
		Long:              "Urban Quest - chat with a generative model about the world around you, with optional photos",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
		RunE: runTUI,
	}

	// Ask command for one-shot questions
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question without entering the TUI",
		RunE:  runAsk,
	}

	providersCmd = &cobra.Command{
		Use:   "providers",
		Short: "List supported providers",
		Run:   listProviders,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	setDefaultCmd = &cobra.Command{
		Use:   "set-default <provider> [model]",
		Short: "Persist the default provider and model",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  setDefault,
	}

	showConfigCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Run:   showConfig,
	}
)

func init() {
	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("provider", "", "LLM provider (gemini, openai, deepseek, groq, moonshot, lmstudio, ollama)")
	flags.String("model", "", "Model to use")
	flags.String("vision", "", "Image analysis backend (stub, gemini)")
	flags.String("vision-model", "", "Model used for image analysis")
	flags.Duration("timeout", 0, "Deadline for a single turn")
	flags.Int("max-turns", 0, "Keep at most this many turns in memory (0 keeps all)")
	flags.Int("max-tokens", 0, "Cap the length of each model response (0 uses the provider default)")
	flags.String("organization", "", "Organization ID sent to OpenAI-compatible providers")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.String("log-file", "", "Log file location")

	// TUI-specific flags
	rootCmd.Flags().StringVar(&theme, "theme", "default", "Color theme (default, night)")

	askCmd.Flags().StringVarP(&imagePath, "image", "i", "", "Photo to ask about")

	// Add subcommands
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(setDefaultCmd)
	configCmd.AddCommand(showConfigCmd)
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	configManager, err = config.NewManager()
	if err != nil {
		return fmt.Errorf("failed to create config manager: %w", err)
	}
	if err := configManager.BindFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg := configManager.Config()
	logger, err = logging.New(logging.Options{Verbose: cfg.Verbose, File: cfg.LogFile})
	if err != nil {
		return err
	}
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg := configManager.Config()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator, cleanup, err := buildSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	p := tea.NewProgram(
		tui.New(orchestrator, cfg.Provider, modelName(cfg), tui.WithTheme(theme)),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg := configManager.Config()
	question := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var img *vision.Image
	if imagePath != "" {
		var err error
		img, err = capture.NewFileSource(imagePath).Capture(ctx)
		if err != nil {
			return fmt.Errorf("failed to load image: %w", err)
		}
	}

	orchestrator, cleanup, err := buildSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	turn, err := orchestrator.SubmitTurn(ctx, question, img)
	if err != nil {
		if errors.Is(err, session.ErrEmptyTurn) {
			return fmt.Errorf("nothing to ask: pass a question or --image")
		}
		return err
	}

	if cfg.Verbose {
		fmt.Printf("> %s\n\n", turn.InputText)
	}
	if turn.Failed {
		fmt.Fprintln(os.Stderr, turn.ResponseText)
		return fmt.Errorf("model request failed")
	}
	fmt.Println(turn.ResponseText)

	return nil
}

func setDefault(cmd *cobra.Command, args []string) error {
	provider := strings.ToLower(args[0])
	if !isKnownProvider(provider) {
		return fmt.Errorf("unknown provider: %s", provider)
	}
	model := ""
	if len(args) > 1 {
		model = args[1]
	}

	if err := configManager.SetDefaults(provider, model); err != nil {
		return err
	}
	fmt.Printf("Default provider set to %s in %s\n", provider, configManager.Path())
	return nil
}

func showConfig(cmd *cobra.Command, args []string) {
	cfg := configManager.Config()
	fmt.Printf("provider:     %s\n", cfg.Provider)
	fmt.Printf("model:        %s\n", modelName(cfg))
	fmt.Printf("vision:       %s\n", cfg.Vision)
	fmt.Printf("vision_model: %s\n", cfg.VisionModel)
	fmt.Printf("timeout:      %s\n", cfg.Timeout)
	fmt.Printf("max_turns:    %d\n", cfg.MaxTurns)
	fmt.Printf("max_tokens:   %d\n", cfg.MaxTokens)
	fmt.Printf("log_file:     %s\n", cfg.LogFile)
	fmt.Printf("config file:  %s\n", configManager.Path())
}
