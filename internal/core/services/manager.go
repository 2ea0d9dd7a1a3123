package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tarnhelm/internal/config"
	"tarnhelm/internal/core/domain"
	"tarnhelm/internal/core/ports"
)

// BackupManager error constants
var (
	ErrManagerSettingsNil = errors.New("settings cannot be nil")
	ErrManagerNoLocations = errors.New("at least one storage location is required")
	ErrManagerLoggerNil   = errors.New("logger cannot be nil")
	ErrManagerClockNil    = errors.New("clock cannot be nil")
	ErrManagerNoSources   = errors.New("no source paths provided")
	ErrNoBackups          = errors.New("no backups found")
	ErrRestoreDestination = errors.New("restore destination is not a usable directory")
)

// BoundLocation pairs a storage backend with the location metadata it serves.
type BoundLocation struct {
	Backend     ports.StorageBackend
	StorageType domain.StorageType
	StoragePath string
}

// BackupManager orchestrates the backup lifecycle: staging one archive per
// run, publishing it to every bound location, and driving listing, pruning,
// relabeling, and restore over the backend contract. A manager owns its
// scratch directory for its lifetime and is not safe for concurrent use.
type BackupManager struct {
	settings  *config.Settings
	locations []BoundLocation
	builder   *ArchiveBuilder
	scratch   string
	logger    ports.Logger
	clock     ports.Clock
	chown     ports.OwnershipAdjuster
	dumper    ports.DatabaseDumper

	inventory        []domain.StorageLocation
	rebuildInventory bool
}

// NewBackupManager creates a backup manager over the given bound locations.
// The ownership adjuster and database dumper collaborators may be nil.
func NewBackupManager(
	settings *config.Settings,
	locations []BoundLocation,
	scratch string,
	logger ports.Logger,
	clock ports.Clock,
	chown ports.OwnershipAdjuster,
	dumper ports.DatabaseDumper,
) (*BackupManager, error) {
	if settings == nil {
		return nil, ErrManagerSettingsNil
	}
	if len(locations) == 0 {
		return nil, ErrManagerNoLocations
	}
	if logger == nil {
		return nil, ErrManagerLoggerNil
	}
	if clock == nil {
		return nil, ErrManagerClockNil
	}

	builder, err := NewArchiveBuilder(settings, scratch, logger)
	if err != nil {
		return nil, err
	}

	return &BackupManager{
		settings:         settings,
		locations:        locations,
		builder:          builder,
		scratch:          scratch,
		logger:           logger,
		clock:            clock,
		chown:            chown,
		dumper:           dumper,
		rebuildInventory: true,
	}, nil
}

// StorageLocations returns the inventory of every bound location, reading
// each backend at most once per mutation. Filenames that do not match the
// backup grammar are skipped.
func (m *BackupManager) StorageLocations(ctx context.Context) ([]domain.StorageLocation, error) {
	if !m.rebuildInventory && m.inventory != nil {
		return m.inventory, nil
	}

	inventory := make([]domain.StorageLocation, 0, len(m.locations))
	for _, bound := range m.locations {
		ids, err := bound.Backend.List(ctx, m.settings.Name)
		if err != nil {
			return nil, fmt.Errorf("list backups in %s: %w", bound.StoragePath, err)
		}

		location := domain.StorageLocation{
			StorageType: bound.StorageType,
			StoragePath: bound.StoragePath,
		}
		for _, id := range ids {
			filename := filepath.Base(id)
			parsed, ok := domain.ParseBackupName(filename, m.settings.Location())
			if !ok {
				m.logger.Trace("skip unparsable backup name", "name", filename)
				continue
			}
			backup := domain.Backup{
				StorageType: bound.StorageType,
				Name:        filename,
				StoragePath: bound.StoragePath,
				Timestamp:   parsed.Timestamp,
			}
			if bound.StorageType == domain.StorageTypeLocal {
				backup.Path = id
			}
			location.Backups = append(location.Backups, backup)
		}
		location.SortBackups()
		inventory = append(inventory, location)
	}

	m.inventory = inventory
	m.rebuildInventory = false
	return m.inventory, nil
}

// CreateBackup stages one archive and publishes it to every bound location.
// A publish failure skips only that location; the returned list reflects the
// successes.
func (m *BackupManager) CreateBackup(ctx context.Context) ([]domain.Backup, error) {
	sources := m.settings.Sources
	if m.dumper != nil {
		dumpFile, err := m.dumper.Dump(ctx)
		if err != nil {
			return nil, fmt.Errorf("database dump pre-step: %w", err)
		}
		m.logger.Info("using database dump as backup source", "path", dumpFile)
		sources = []string{dumpFile}
	}
	if len(sources) == 0 {
		return nil, ErrManagerNoSources
	}

	staged, err := m.builder.Build(ctx, sources)
	if err != nil {
		return nil, err
	}
	defer os.Remove(staged)

	now := m.clock.Now().In(m.settings.Location())
	var created []domain.Backup

	for _, bound := range m.locations {
		name, err := m.newBackupName(ctx, bound, now)
		if err != nil {
			m.logger.Warn("failed to derive backup name", "storage_path", bound.StoragePath, "error", err)
			continue
		}

		id := m.identifier(bound, name)
		if err := bound.Backend.Put(ctx, staged, id); err != nil {
			m.logger.Warn("failed to publish backup", "storage_path", bound.StoragePath, "error", err)
			continue
		}

		backup := domain.Backup{
			StorageType: bound.StorageType,
			Name:        name,
			StoragePath: bound.StoragePath,
			Timestamp:   now,
		}
		if bound.StorageType == domain.StorageTypeLocal {
			backup.Path = id
		}
		created = append(created, backup)
		m.rebuildInventory = true
		m.logger.Info("created backup", "storage_path", bound.StoragePath, "name", name)
	}

	return created, nil
}

// newBackupName derives the filename for a create, appending a uid when the
// first-class name already exists in the location.
func (m *BackupManager) newBackupName(ctx context.Context, bound BoundLocation, now time.Time) (string, error) {
	name := domain.ComposeBackupName(m.settings.Name, now.Format(domain.TimestampLayout), "", "")

	exists, err := bound.Backend.Exists(ctx, m.identifier(bound, name))
	if err != nil {
		return "", err
	}
	if !exists {
		return name, nil
	}

	return domain.ComposeBackupName(
		m.settings.Name, now.Format(domain.TimestampLayout), "", domain.NewUID()), nil
}

func (m *BackupManager) identifier(bound BoundLocation, name string) string {
	if bound.StorageType == domain.StorageTypeLocal {
		return filepath.Join(bound.StoragePath, name)
	}
	return name
}

// ListBackups returns the union of every location's inventory.
func (m *BackupManager) ListBackups(ctx context.Context) ([]domain.Backup, error) {
	locations, err := m.StorageLocations(ctx)
	if err != nil {
		return nil, err
	}

	var backups []domain.Backup
	for _, location := range locations {
		backups = append(backups, location.Backups...)
	}
	return backups, nil
}

// GetLatestBackup returns the most recent backup across all locations, or
// ErrNoBackups when every location is empty.
func (m *BackupManager) GetLatestBackup(ctx context.Context) (domain.Backup, error) {
	backups, err := m.ListBackups(ctx)
	if err != nil {
		return domain.Backup{}, err
	}
	if len(backups) == 0 {
		return domain.Backup{}, ErrNoBackups
	}

	latest := backups[0]
	for _, backup := range backups[1:] {
		if backup.Timestamp.After(latest.Timestamp) {
			latest = backup
		}
	}
	return latest, nil
}

// PruneBackups evaluates the retention policy against every location and
// executes the deletions: per-object for local victims, one batch call for
// object-store victims. The returned list holds every selected victim.
func (m *BackupManager) PruneBackups(ctx context.Context) ([]domain.Backup, error) {
	policy := m.settings.RetentionPolicy()
	if policy.Type == domain.RetentionKeepAll {
		m.logger.Info("will not delete backups because no retention policy is set")
		return nil, nil
	}

	locations, err := m.StorageLocations(ctx)
	if err != nil {
		return nil, err
	}

	var victims []domain.Backup
	for i, location := range locations {
		locationVictims := PruneVictims(location, policy)
		if len(locationVictims) == 0 {
			continue
		}
		victims = append(victims, locationVictims...)
		m.executePrune(ctx, m.locations[i], locationVictims)
		m.rebuildInventory = true
	}

	m.logger.Info("pruned backups", "count", len(victims))
	return victims, nil
}

func (m *BackupManager) executePrune(ctx context.Context, bound BoundLocation, victims []domain.Backup) {
	if bound.StorageType == domain.StorageTypeLocal {
		for _, victim := range victims {
			if err := bound.Backend.Delete(ctx, victim.ID()); err != nil {
				m.logger.Warn("failed to delete backup", "name", victim.Name, "error", err)
				continue
			}
			m.logger.Info("deleted backup", "name", victim.Name)
		}
		return
	}

	ids := make([]string, 0, len(victims))
	for _, victim := range victims {
		ids = append(ids, victim.ID())
	}
	if err := bound.Backend.DeleteMany(ctx, ids); err != nil {
		m.logger.Warn("failed to batch delete backups", "storage_path", bound.StoragePath, "error", err)
	}
}

// RenameBackups reshapes every backup's filename to the current labeling
// policy. Individual rename failures are logged and do not abort the rest.
func (m *BackupManager) RenameBackups(ctx context.Context) error {
	locations, err := m.StorageLocations(ctx)
	if err != nil {
		return err
	}

	renamed := 0
	for i, location := range locations {
		bound := m.locations[i]
		actions := PlanRenames(location, m.settings.LabelTimeUnits, m.settings.Location())

		for _, action := range actions {
			if !action.Do {
				continue
			}
			oldID := action.Backup.ID()
			newID := m.identifier(bound, action.NewName)
			if err := bound.Backend.Rename(ctx, oldID, newID); err != nil {
				m.logger.Warn("failed to rename backup", "name", action.Backup.Name, "error", err)
				continue
			}
			m.logger.Debug("renamed backup", "from", action.Backup.Name, "to", action.NewName)
			renamed++
			m.rebuildInventory = true
		}
	}

	if renamed > 0 {
		m.logger.Info("renamed backups", "count", renamed)
	} else {
		m.logger.Info("no backups to rename")
	}
	return nil
}

// RestoreBackup extracts the most recent backup into destination. The
// returned bool is the user-visible outcome; failures are non-fatal to the
// process and the accompanying error carries the reason.
func (m *BackupManager) RestoreBackup(ctx context.Context, destination string, cleanBeforeRestore bool) (bool, error) {
	if destination == "" {
		destination = m.settings.RestorePath
	}
	if destination == "" {
		return false, fmt.Errorf("%w: no destination provided", ErrRestoreDestination)
	}

	info, err := os.Stat(destination)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrRestoreDestination, destination)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%w: not a directory: %s", ErrRestoreDestination, destination)
	}

	if cleanBeforeRestore || m.settings.CleanBeforeRestore {
		if err := cleanDirectory(destination); err != nil {
			return false, err
		}
		m.logger.Info("cleaned all files in backup destination before restore")
	}

	latest, err := m.GetLatestBackup(ctx)
	if err != nil {
		return false, err
	}
	m.logger.Debug("restoring backup", "name", latest.Name)

	bound, err := m.boundFor(latest)
	if err != nil {
		return false, err
	}

	tarPath, err := m.fetchForRestore(ctx, bound, latest)
	if err != nil {
		return false, err
	}

	if err := m.builder.Extract(ctx, tarPath, destination); err != nil {
		return false, err
	}

	if m.chown != nil && m.settings.ChownUID != nil && m.settings.ChownGID != nil {
		if err := m.chown.Apply(destination, *m.settings.ChownUID, *m.settings.ChownGID); err != nil {
			m.logger.Warn("failed to adjust ownership", "error", err)
		}
	}

	m.logger.Info("restored backup", "destination", destination)
	return true, nil
}

func (m *BackupManager) boundFor(backup domain.Backup) (BoundLocation, error) {
	for _, bound := range m.locations {
		if bound.StorageType == backup.StorageType && bound.StoragePath == backup.StoragePath {
			return bound, nil
		}
	}
	return BoundLocation{}, fmt.Errorf("no storage location bound for %s", backup.StoragePath)
}

// fetchForRestore materializes the backup locally, downloading object-store
// archives into scratch first.
func (m *BackupManager) fetchForRestore(ctx context.Context, bound BoundLocation, backup domain.Backup) (string, error) {
	if backup.StorageType == domain.StorageTypeAWS {
		exists, err := bound.Backend.Exists(ctx, backup.Name)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", ports.NewStorageError(ports.StorageNotFound, backup.Name, nil)
		}
	}

	target := filepath.Join(m.scratch, uuid.NewString()+"."+domain.BackupExtension)
	return bound.Backend.Get(ctx, backup.ID(), target)
}

// cleanDirectory empties a directory file by file without removing the
// directory itself.
func cleanDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("clean %s: %w", dir, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
	}
	return nil
}
