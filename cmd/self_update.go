package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fcclab/streamlab/internal/systemd"
	"github.com/fcclab/streamlab/internal/updater"
)

type selfUpdateFlags struct {
	check       bool
	rollback    bool
	prerelease  bool
	repository  string
	restartUnit string
	system      bool
}

// CreateSelfUpdateCmd creates the self-update command.
func CreateSelfUpdateCmd() *cobra.Command {
	var f selfUpdateFlags

	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Update streamlab to the latest release",
		Long: `Downloads the latest GitHub release and replaces the running binary. The previous binary ` +
			`is kept as a backup for --rollback. With --restart-unit the given systemd unit is ` +
			`restarted afterwards so a running viewer service picks up the new binary.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx, cancel := signalContext()
			defer cancel()

			if err := runSelfUpdate(ctx, cmd.OutOrStdout(), f); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVar(&f.check, "check", false, "Only report whether an update is available")
	cmd.Flags().BoolVar(&f.rollback, "rollback", false, "Restore the binary replaced by the last update")
	cmd.Flags().BoolVar(&f.prerelease, "prerelease", false, "Consider prereleases")
	cmd.Flags().StringVar(&f.repository, "repository", updater.DefaultRepository, "GitHub repository owner/name")
	cmd.Flags().StringVar(&f.restartUnit, "restart-unit", "", "systemd unit to restart after updating, e.g. streamlab.service")
	cmd.Flags().BoolVar(&f.system, "system", false, "Use the system service manager instead of the user one")
	cmd.MarkFlagsMutuallyExclusive("check", "rollback")

	return cmd
}

func runSelfUpdate(ctx context.Context, out io.Writer, f selfUpdateFlags) error {
	u, err := updater.New(updater.Options{Repository: f.repository, Prerelease: f.prerelease})
	if err != nil {
		return err
	}

	switch {
	case f.check:
		info, err := u.Check(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Current version: %s\n", info.CurrentVersion)
		fmt.Fprintf(out, "Latest version:  %s (%s)\n", info.LatestVersion, info.PublishedAt.Format(time.DateOnly))
		if info.UpdateAvailable {
			fmt.Fprintf(out, "Update available: %s\n", info.ReleaseURL)
		} else {
			fmt.Fprintln(out, "Up to date.")
		}
		if v, ok := u.Backup(); ok {
			fmt.Fprintf(out, "Backup available: %s\n", v)
		}
		return nil

	case f.rollback:
		v, err := u.Rollback()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Restored version %s\n", v)

	default:
		info, err := u.Apply(ctx)
		if errors.Is(err, updater.ErrNoUpdate) {
			fmt.Fprintf(out, "Already up to date (%s).\n", info.CurrentVersion)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Updated %s -> %s\n", info.CurrentVersion, info.LatestVersion)
	}

	if f.restartUnit == "" {
		return nil
	}
	return restartUnit(ctx, out, f.restartUnit, f.system)
}

func restartUnit(ctx context.Context, out io.Writer, unit string, system bool) error {
	m, err := systemd.NewManager(ctx, system)
	if err != nil {
		return err
	}
	defer m.Close()

	fmt.Fprintf(out, "Restarting %s...\n", unit)
	if err := m.Restart(ctx, unit); err != nil {
		return err
	}
	state, err := m.Status(ctx, unit)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s is %s\n", unit, state)
	return nil
}
