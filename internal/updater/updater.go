// Package updater replaces the running binary with the latest GitHub
// release and keeps one backup for rollback.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/fcclab/streamlab/internal/logging"
	"github.com/fcclab/streamlab/internal/version"
)

// DefaultRepository is the release source.
const DefaultRepository = "fcclab/streamlab"

var (
	// ErrNoRelease is returned when the repository has no matching release.
	ErrNoRelease = errors.New("repository not found or has no releases")
	// ErrNoUpdate is returned by Apply when the running version is current.
	ErrNoUpdate = errors.New("no update available")
	// ErrNoBackup is returned by Rollback without a stored backup.
	ErrNoBackup = errors.New("no backup available")
)

// Options configures an Updater.
type Options struct {
	Repository string
	Prerelease bool
	// BackupDir defaults to ~/.cache/streamlab/backup.
	BackupDir string
}

// Info describes the latest release relative to the running version.
type Info struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	AssetSize       int       `json:"asset_size"`
	UpdateAvailable bool      `json:"update_available"`
}

// Updater checks for and applies releases.
type Updater struct {
	repo    selfupdate.Repository
	updater *selfupdate.Updater
	backups *backupManager
	logger  *slog.Logger
}

// New creates an updater for opts.Repository.
func New(opts Options) (*Updater, error) {
	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}
	logger := logging.GetLogger("updater")

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("create GitHub source: %w", err)
	}
	up, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}

	dir := opts.BackupDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve backup directory: %w", err)
		}
		dir = filepath.Join(home, ".cache", "streamlab", "backup")
	}
	backups, err := newBackupManager(dir, logger)
	if err != nil {
		return nil, err
	}

	return &Updater{
		repo:    selfupdate.ParseSlug(opts.Repository),
		updater: up,
		backups: backups,
		logger:  logger,
	}, nil
}

// Check queries the latest release without downloading it.
func (u *Updater) Check(ctx context.Context) (*Info, error) {
	info, _, err := u.detect(ctx)
	return info, err
}

func (u *Updater) detect(ctx context.Context) (*Info, *selfupdate.Release, error) {
	release, found, err := u.updater.DetectLatest(ctx, u.repo)
	if err != nil {
		return nil, nil, fmt.Errorf("check for updates: %w", err)
	}
	if !found {
		return nil, nil, ErrNoRelease
	}

	current := version.Version
	info := &Info{
		CurrentVersion: current,
		LatestVersion:  release.Version(),
		ReleaseNotes:   release.ReleaseNotes,
		ReleaseURL:     release.URL,
		PublishedAt:    release.PublishedAt,
		AssetSize:      release.AssetByteSize,
		// dev builds always update
		UpdateAvailable: current == "dev" || release.GreaterThan(current),
	}
	return info, release, nil
}

// Apply backs up the running binary and replaces it with the latest
// release. A failed replacement restores the backup.
func (u *Updater) Apply(ctx context.Context) (*Info, error) {
	info, release, err := u.detect(ctx)
	if err != nil {
		return nil, err
	}
	if !info.UpdateAvailable {
		return info, ErrNoUpdate
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	if err := checkWritable(exe); err != nil {
		return nil, err
	}
	if err := u.backups.create(exe, info.CurrentVersion); err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}

	u.logger.Info("Applying update", "from", info.CurrentVersion, "to", info.LatestVersion)
	if err := u.updater.UpdateTo(ctx, release, exe); err != nil {
		if restoreErr := u.backups.restore(); restoreErr != nil {
			u.logger.Error("Failed to restore backup", "error", restoreErr)
		}
		return nil, fmt.Errorf("apply update: %w", err)
	}
	u.logger.Info("Update applied", "version", info.LatestVersion)
	return info, nil
}

// Rollback restores the backed up binary and returns its version.
func (u *Updater) Rollback() (string, error) {
	v, ok := u.backups.version()
	if !ok {
		return "", ErrNoBackup
	}
	if err := u.backups.restore(); err != nil {
		return "", fmt.Errorf("restore backup: %w", err)
	}
	return v, nil
}

// Backup reports the version of the stored backup, if any.
func (u *Updater) Backup() (string, bool) {
	return u.backups.version()
}

// checkWritable fails when the directory holding exe cannot be written.
func checkWritable(exe string) error {
	dir := filepath.Dir(exe)
	f, err := os.CreateTemp(dir, ".streamlab.update.*")
	if err != nil {
		return fmt.Errorf("no write permission to %s: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
