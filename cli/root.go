package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/docbed/docbed/pkg/config"
	"github.com/docbed/docbed/pkg/logger"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docbed",
		Short: "Document ingestion, embedding and summarization pipeline",
	}
	root.PersistentFlags().String("config", "", "Path to the config file")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("log-json", false, "Emit JSON logs")
	root.AddCommand(
		WorkerCmd(),
		ServerCmd(),
		MigrateCmd(),
	)
	return root
}

// setup loads the effective config and stores the logger on the command
// context. Flags win over file and environment values.
func setup(cmd *cobra.Command) (context.Context, *config.Config, logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}
	log := logger.NewLogger(&logger.Config{
		Level: logger.LogLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	ctx := logger.ContextWithLogger(cmd.Context(), log)
	return ctx, cfg, log, nil
}
