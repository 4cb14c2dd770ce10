package cmd

import (
	"github.com/eventos/apiserver/config"
	"github.com/eventos/apiserver/internal/db"
	"github.com/spf13/cobra"
)

var migrateDownSteps int

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run postgres schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := config.NewLogger(cfg.Logging)

		if err := db.MigrateUp(db.PostgresURL(cfg)); err != nil {
			return err
		}
		log.Info().Str("database", cfg.Database.DBName).Msg("migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert migrations (all of them unless --steps is set)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := config.NewLogger(cfg.Logging)

		if err := db.MigrateDown(db.PostgresURL(cfg), migrateDownSteps); err != nil {
			return err
		}
		log.Info().Str("database", cfg.Database.DBName).Int("steps", migrateDownSteps).Msg("migrations reverted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)

	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 0, "number of migrations to revert; 0 reverts all")
}
