package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	pg "chat-task-bridge/internal/infra/db/postgres"
)

func migrateCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL(flags)
			if err != nil {
				return err
			}
			if err := pg.MigrateUp(url); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL(flags)
			if err != nil {
				return err
			}
			if err := pg.MigrateDown(url, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d step(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied migration version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL(flags)
			if err != nil {
				return err
			}
			v, dirty, err := pg.MigrationVersion(url)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", v, dirty)
			return nil
		},
	})
	return cmd
}

func databaseURL(flags *globalFlags) (string, error) {
	cfg, err := flags.load()
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		return "", errors.New("database.url is required for migrations")
	}
	return cfg.Database.URL, nil
}
