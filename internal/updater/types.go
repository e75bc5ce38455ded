package updater

import (
	"context"
	"time"

	"github.com/creativeprojects/go-selfupdate"
)

// State represents the current state of the update process.
type State string

// Update states.
const (
	StateIdle       State = "idle"
	StateChecking   State = "checking"
	StateAvailable  State = "available"
	StateApplying   State = "applying"
	StateRestarting State = "restarting"
	StateError      State = "error"
	StateRolledBack State = "rolled_back"
)

// UpdateInfo contains information about an available update.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version" example:"1.0.0" doc:"Currently installed version"`
	LatestVersion   string    `json:"latest_version" example:"1.1.0" doc:"Latest available version"`
	ReleaseNotes    string    `json:"release_notes,omitempty" doc:"Markdown release notes"`
	ReleaseURL      string    `json:"release_url,omitempty" doc:"URL to the release page"`
	PublishedAt     time.Time `json:"published_at,omitzero" doc:"When the release was published"`
	AssetSize       int       `json:"asset_size,omitempty" doc:"Size of the update in bytes"`
	UpdateAvailable bool      `json:"update_available" doc:"Whether an update is available"`
}

// Status contains the current state of the updater.
type Status struct {
	State           State      `json:"state" example:"idle" doc:"Current update state"`
	CurrentVersion  string     `json:"current_version" doc:"Current version"`
	TargetVersion   string     `json:"target_version,omitempty" doc:"Version being updated to"`
	Error           string     `json:"error,omitempty" doc:"Error message if in error state"`
	LastChecked     *time.Time `json:"last_checked,omitempty" doc:"When updates were last checked"`
	BackupAvailable bool       `json:"backup_available" doc:"Whether a backup is available"`
	BackupVersion   string     `json:"backup_version,omitempty" doc:"Version of the backup"`
}

// Options contains configuration for the updater service.
type Options struct {
	Repository string // GitHub repo slug (e.g., "smazurov/qrgrabber")
	Prerelease bool
	// BackupDir defaults to ~/.cache/qrgrabber/backup.
	BackupDir string
	// OnApplied runs after a new binary is in place. The server uses it to
	// exit so systemd restarts the new version.
	OnApplied func()
}

// releaseSource is the part of *selfupdate.Updater the service uses.
type releaseSource interface {
	DetectLatest(ctx context.Context, repository selfupdate.Repository) (*selfupdate.Release, bool, error)
	UpdateTo(ctx context.Context, rel *selfupdate.Release, cmdPath string) error
}
