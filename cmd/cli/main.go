package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tarnhelm/internal/adapters"
	"tarnhelm/internal/config"
	"tarnhelm/internal/core/domain"
	"tarnhelm/internal/core/ports"
	"tarnhelm/internal/core/services"
)

var (
	flagName         string
	flagSources      []string
	flagStoragePaths []string
	flagStorageType  string
	flagLogLevel     string
)

var settings *config.Settings

var rootCmd = &cobra.Command{
	Use:           "tarnhelm",
	Short:         "Automated backup engine for local and S3-compatible storage",
	Long:          `tarnhelm creates timestamped, compressed archives of configured sources, distributes them to local and S3-compatible storage, enforces retention policies, and restores the most recent archive.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.FromEnv()
		if err != nil {
			return err
		}
		settings = loaded

		if flagName != "" {
			settings.Name = flagName
		}
		if len(flagSources) > 0 {
			settings.Sources = flagSources
		}
		if len(flagStoragePaths) > 0 {
			settings.StoragePaths = flagStoragePaths
		}
		if flagStorageType != "" {
			settings.StorageType, err = domain.ParseStorageType(flagStorageType)
			if err != nil {
				return err
			}
		}
		if flagLogLevel != "" {
			settings.LogLevel = flagLogLevel
		}

		return settings.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagName, "name", "n", "", "Backup identity used in filenames")
	rootCmd.PersistentFlags().StringSliceVar(&flagSources, "source", nil, "Source path to back up (repeatable)")
	rootCmd.PersistentFlags().StringSliceVar(&flagStoragePaths, "storage-path", nil, "Local destination root (repeatable)")
	rootCmd.PersistentFlags().StringVar(&flagStorageType, "storage-type", "", "Enabled backends: local, aws, or all")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: trace, debug, info, warning, error")

	rootCmd.AddCommand(backupCommand())
	rootCmd.AddCommand(restoreCommand())
	rootCmd.AddCommand(listCommand())
	rootCmd.AddCommand(pruneCommand())
	rootCmd.AddCommand(relabelCommand())
}

// newManager wires the configured backends, collaborators, and scratch
// directory into a BackupManager. The returned release func tears down the
// scratch directory.
func newManager(ctx context.Context) (*services.BackupManager, ports.Logger, func(), error) {
	level, err := adapters.ParseLevel(settings.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := adapters.NewSlogLoggerWithLevel(level)

	scratch, err := adapters.NewScratchDir()
	if err != nil {
		return nil, nil, nil, err
	}
	release := func() { _ = scratch.Release() }

	var locations []services.BoundLocation

	if settings.StorageType == domain.StorageTypeLocal || settings.StorageType == domain.StorageTypeAll {
		for _, path := range settings.StoragePaths {
			backend, err := adapters.NewLocalStorage(path)
			if err != nil {
				release()
				return nil, nil, nil, err
			}
			locations = append(locations, services.BoundLocation{
				Backend:     backend,
				StorageType: domain.StorageTypeLocal,
				StoragePath: backend.Root(),
			})
		}
	}

	if settings.StorageType == domain.StorageTypeAWS || settings.StorageType == domain.StorageTypeAll {
		backend, err := adapters.NewS3Storage(ctx,
			settings.AWSAccessKey, settings.AWSSecretKey,
			settings.AWSBucketName, settings.AWSBucketPath, logger)
		if err != nil {
			release()
			return nil, nil, nil, err
		}
		locations = append(locations, services.BoundLocation{
			Backend:     backend,
			StorageType: domain.StorageTypeAWS,
			StoragePath: settings.AWSBucketPath,
		})
	}

	var dumper ports.DatabaseDumper
	if len(settings.DBDumpCommand) > 0 {
		dumper, err = adapters.NewCommandDumper(
			adapters.NewCommandExecutorAdapter(), settings.DBDumpCommand, scratch.Path(), logger)
		if err != nil {
			release()
			return nil, nil, nil, err
		}
	}

	manager, err := services.NewBackupManager(
		settings, locations, scratch.Path(), logger,
		adapters.SystemClock{}, adapters.NewChownAdjuster(logger), dumper)
	if err != nil {
		release()
		return nil, nil, nil, err
	}

	return manager, logger, release, nil
}

func backupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Create a backup and publish it to every storage location",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, _, release, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			_, err = manager.CreateBackup(cmd.Context())
			return err
		},
	}
}

func restoreCommand() *cobra.Command {
	var clean bool
	cmd := &cobra.Command{
		Use:   "restore [destination]",
		Short: "Restore the most recent backup into a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, logger, release, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			destination := ""
			if len(args) > 0 {
				destination = args[0]
			}

			ok, err := manager.RestoreBackup(cmd.Context(), destination, clean)
			if !ok {
				logger.Error("restore failed", "error", err)
				return fmt.Errorf("restore failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clean, "clean", false, "Empty the destination before restoring")
	return cmd
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every backup across all storage locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, _, release, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			backups, err := manager.ListBackups(cmd.Context())
			if err != nil {
				return err
			}
			for _, backup := range backups {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n",
					backup.StorageType, backup.StoragePath, backup.Name)
			}
			return nil
		},
	}
}

func pruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete backups selected by the retention policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, _, release, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			_, err = manager.PruneBackups(cmd.Context())
			return err
		},
	}
}

func relabelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "relabel",
		Short: "Rename existing backups to match the current labeling policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, _, release, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			return manager.RenameBackups(cmd.Context())
		},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
