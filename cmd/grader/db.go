package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	cmd.AddCommand(dbStatsCmd(), dbBackupCmd(), dbResetCmd())
	return cmd
}

func dbStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print record counts and the average score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)

			db, err := openStore(v)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := db.Stats()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}
	addDBFlag(cmd.Flags())
	addLogFlags(cmd.Flags())
	return cmd
}

func dbBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup PATH",
		Short: "Write a consistent copy of the database to PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)

			db, err := openStore(v)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Backup(args[0]); err != nil {
				return err
			}
			slog.Info("database backed up", "path", args[0])
			return nil
		},
	}
	addDBFlag(cmd.Flags())
	addLogFlags(cmd.Flags())
	return cmd
}

func dbResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every student, question bank and evaluation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)

			if !v.GetBool("yes") {
				return errors.New("refusing to reset without --yes")
			}

			db, err := openStore(v)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Reset(); err != nil {
				return fmt.Errorf("reset database: %w", err)
			}
			slog.Info("database reset", "path", v.GetString("db"))
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm deleting all data")
	addDBFlag(cmd.Flags())
	addLogFlags(cmd.Flags())
	return cmd
}
