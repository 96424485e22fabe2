package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/RogueScr1be/dinnerlock/internal/cli"
)

var (
	// Global state set during PersistentPreRunE
	cfg        *cli.Config
	configPath string

	// Persistent flags
	cfgFile string
	verbose int
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "dinnerlock",
	Short: "Tenant-isolated dinner decision core",
	Long: `dinnerlock - tenant-isolated single-recommendation decision core

Dinnerlock manages household dinner sessions: one locked recommendation per
round, an append-only decision ledger, and a rescue path that always produces
something to eat. Every SQL statement it issues is statically proven unable to
touch another household's rows.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch verbose {
		case 0:
			logrus.SetLevel(logrus.InfoLevel)
		case 1:
			logrus.SetLevel(logrus.DebugLevel)
		default:
			logrus.SetLevel(logrus.TraceLevel)
		}
		if quiet {
			logrus.SetLevel(logrus.ErrorLevel)
		}

		// Skip config loading for help/completion/version commands
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, configPath, err = cli.LoadConfig(cfgFile)
		if err != nil {
			return cli.ConfigError("loading configuration", err)
		}

		return nil
	},
	SilenceUsage:  true, // Don't show usage on errors
	SilenceErrors: true, // We handle errors ourselves
}

// Command group IDs
const (
	groupStorage = "storage"
	groupUtility = "utility"
)

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: auto-discover dinnerlock.yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "increase verbosity (can be repeated)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	// Define command groups
	rootCmd.AddGroup(
		&cobra.Group{ID: groupStorage, Title: "Storage:"},
		&cobra.Group{ID: groupUtility, Title: "Utility:"},
	)

	// Storage commands
	migrateCmd.GroupID = groupStorage
	vetCmd.GroupID = groupStorage
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(vetCmd)

	// Utility commands
	configCmd.GroupID = groupUtility
	versionCmd.GroupID = groupUtility
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cli.ExitWithError(err)
	}
}
