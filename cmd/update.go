package cmd

import (
	"fmt"
	"os"

	"github.com/smazurov/qrgrabber/internal/config"
	"github.com/smazurov/qrgrabber/internal/logging"
	"github.com/smazurov/qrgrabber/internal/updater"
	"github.com/spf13/cobra"
)

// DefaultRepository is the GitHub repository releases are fetched from.
const DefaultRepository = "smazurov/qrgrabber"

type updateOptions struct {
	Config     string
	Repository string `toml:"update.repository" env:"UPDATE_REPOSITORY"`
	Prerelease bool   `toml:"update.prerelease" env:"UPDATE_PRERELEASE"`
}

// CreateUpdateCmd creates the update command.
func CreateUpdateCmd() *cobra.Command {
	var opts updateOptions
	var checkOnly bool
	var rollback bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update qrgrabber to the latest release",
		Long: `Downloads the latest GitHub release and replaces the running binary, keeping a backup. ` +
			`Restart the service afterwards. --rollback restores the backup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadConfig(&opts, cmd); err != nil {
				return err
			}
			logging.Initialize(logging.Config{Level: "info", Format: "text", Output: os.Stderr})
			logger := logging.GetLogger("updater")

			svc, err := updater.NewService(updater.Options{
				Repository: opts.Repository,
				Prerelease: opts.Prerelease,
			}, logger)
			if err != nil {
				return err
			}
			if !svc.IsEnabled() {
				return fmt.Errorf("updates disabled: %s", svc.DisabledReason())
			}

			out := cmd.OutOrStdout()
			if rollback {
				if err := svc.Rollback(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "restored", svc.GetStatus().BackupVersion)
				return nil
			}

			info, err := svc.CheckForUpdate(cmd.Context())
			if err != nil {
				return err
			}
			if !info.UpdateAvailable {
				fmt.Fprintf(out, "qrgrabber %s is up to date\n", info.CurrentVersion)
				return nil
			}
			fmt.Fprintf(out, "update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
			if info.ReleaseURL != "" {
				fmt.Fprintln(out, info.ReleaseURL)
			}
			if checkOnly {
				return nil
			}

			if err := svc.ApplyUpdate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(out, "updated to %s, restart qrgrabber to use it\n", info.LatestVersion)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Config, "config", "c", "config.toml", "Path to configuration file")
	flags.StringVar(&opts.Repository, "repository", DefaultRepository, "GitHub repository (owner/name)")
	flags.BoolVar(&opts.Prerelease, "prerelease", false, "Consider prereleases")
	flags.BoolVar(&checkOnly, "check", false, "Only report whether an update is available")
	flags.BoolVar(&rollback, "rollback", false, "Restore the previous binary")
	return cmd
}
