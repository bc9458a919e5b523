package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"rentbot/internal/config"
	"rentbot/internal/logger"
)

var (
	cfgPath string
	verbose bool
	cfg     *config.AppConfig
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "rentbot",
		Short:         "Ask questions about tenancy documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var (
				path string
				err  error
			)
			if cfgPath == "" {
				cfg, path, err = config.LoadDefault()
			} else {
				cfg, err = config.Load(cfgPath)
				path = cfgPath
			}
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger.SetVerbose(verbose || cfg.Log.Verbose)
			logger.Debug("config loaded from %s", path)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config file (default ./config.yaml or ~/.config/rentbot/config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(uploadCMD(), askCMD(), chatCMD(), houseCMD(), userCMD(), evalCMD())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("%v", err)
		stop()
		os.Exit(1)
	}
}
