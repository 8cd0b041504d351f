package commands

import (
	"github.com/spf13/cobra"

	"openbadges/internal/platform/config"
	"openbadges/pkg/derivation"
	"openbadges/pkg/domain"
)

var (
	configPath   string
	programID    string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "badgectl",
	Short: "Offline tooling for ledger-anchored Open Badges",
	Long: `badgectl derives issuer, achievement and credential addresses exactly as
the server does, and mints bearer tokens for local testing.

Derivation runs offline against the configured program id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&programID, "program-id", "", "program id override (base58)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, yaml or json")
}

// loadConfig reads the server configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if programID != "" {
		cfg.Derivation.ProgramID = programID
	}
	return cfg, nil
}

func newEngine() (*derivation.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	id, err := domain.ParseAddress(cfg.Derivation.ProgramID)
	if err != nil {
		return nil, err
	}
	return derivation.New(id), nil
}
