// Package cli implements the faceswap command line tool.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jo-hoe/faceswap/internal/core"
	"github.com/jo-hoe/faceswap/internal/logging"
	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

type rootOptions struct {
	configPath string
	logLevel   string
	config     *core.ServiceConfig
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "faceswap",
		Short:         "Swap faces between two images using pretrained ONNX models",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath != "" {
				if err := os.Setenv("CONFIG_PATH", opts.configPath); err != nil {
					return err
				}
			}
			config, err := core.LoadConfigFromEnv()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if opts.logLevel != "" {
				config.LogLevel = opts.logLevel
			}
			logging.InitLogger(config.LogLevel)
			opts.config = config
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to the YAML config (default: $CONFIG_PATH or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(newSwapCmd(opts))
	rootCmd.AddCommand(newModelsCmd(opts))
	return rootCmd
}

// Execute runs the command line tool and exits non-zero on failure.
func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
