package main

import (
	"github.com/aussiebroadwan/accounts/internal/accounts/app"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the accounts CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Accounts service",
		Long: `User registration, authentication and profile management over HTTP.

All settings are read from the environment; see internal/accounts/app.Config.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewInitDataCmd())

	return cmd
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Apply pending migrations, seed the first superuser when configured and
serve the HTTP API until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg)

			application, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("failed to initialize application", "error", err)
				return err
			}

			if err := application.Run(cmd.Context()); err != nil {
				logger.Error("application error", "error", err)
				return err
			}
			return nil
		},
	}
}

// NewInitDataCmd creates the init-data subcommand.
func NewInitDataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-data",
		Short: "Create the first superuser",
		Long: `Create the account named by FIRST_SUPERUSER_EMAIL and FIRST_SUPERUSER_PASSWORD
if it does not exist yet. Running it again is a no-op.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.FirstSuperuser.Email == "" {
				cmd.Println("FIRST_SUPERUSER_EMAIL not set, nothing to do")
				return nil
			}

			application, err := app.New(cmd.Context(), cfg, app.NewLogger(cfg))
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			if err := application.SeedSuperuser(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Initial data created")
			return nil
		},
	}
}
