package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarnhelm/internal/adapters"
	"tarnhelm/internal/config"
	"tarnhelm/internal/core/domain"
	"tarnhelm/internal/core/ports/mocks"
	"tarnhelm/internal/testhelpers"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

type managerFixture struct {
	manager *BackupManager
	clock   *fixedClock
	dst     string
}

func newLocalFixture(t *testing.T, mutate func(*config.Settings)) *managerFixture {
	t.Helper()

	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello\n"), 0o644))

	dst := t.TempDir()

	settings := config.Defaults()
	settings.Name = "foo"
	settings.Sources = []string{src}
	settings.StoragePaths = []string{dst}
	if mutate != nil {
		mutate(settings)
	}

	backend, err := adapters.NewLocalStorage(dst)
	require.NoError(t, err)

	clock := &fixedClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	manager, err := NewBackupManager(
		settings,
		[]BoundLocation{{
			Backend:     backend,
			StorageType: domain.StorageTypeLocal,
			StoragePath: backend.Root(),
		}},
		t.TempDir(),
		adapters.NewNopLogger(),
		clock,
		nil,
		nil,
	)
	require.NoError(t, err)

	return &managerFixture{manager: manager, clock: clock, dst: dst}
}

func TestCreateBackupSingleFileLocal(t *testing.T) {
	f := newLocalFixture(t, nil)

	created, err := f.manager.CreateBackup(context.Background())
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, "foo-20240102T030405.tgz", created[0].Name)
	assert.FileExists(t, filepath.Join(f.dst, "foo-20240102T030405.tgz"))
}

func TestCreateBackupCollisionAppendsUID(t *testing.T) {
	f := newLocalFixture(t, nil)
	ctx := context.Background()

	first, err := f.manager.CreateBackup(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Same clock tick: the first-class name already exists.
	second, err := f.manager.CreateBackup(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.NotEqual(t, first[0].Name, second[0].Name)
	parsed, ok := domain.ParseBackupName(second[0].Name, time.UTC)
	require.True(t, ok)
	assert.NotEmpty(t, parsed.UID)
}

func TestListAndLatest(t *testing.T) {
	f := newLocalFixture(t, nil)
	ctx := context.Background()

	_, err := f.manager.CreateBackup(ctx)
	require.NoError(t, err)

	f.clock.now = f.clock.now.Add(24 * time.Hour)
	_, err = f.manager.CreateBackup(ctx)
	require.NoError(t, err)

	backups, err := f.manager.ListBackups(ctx)
	require.NoError(t, err)
	assert.Len(t, backups, 2)

	latest, err := f.manager.GetLatestBackup(ctx)
	require.NoError(t, err)
	assert.Equal(t, "foo-20240103T030405.tgz", latest.Name)
}

func TestGetLatestBackupEmpty(t *testing.T) {
	f := newLocalFixture(t, nil)

	_, err := f.manager.GetLatestBackup(context.Background())
	assert.ErrorIs(t, err, ErrNoBackups)
}

func TestPruneBackupsCountBased(t *testing.T) {
	keep := 3
	f := newLocalFixture(t, func(s *config.Settings) {
		s.MaxBackups = &keep
	})
	ctx := context.Background()

	for day := 1; day <= 5; day++ {
		f.clock.now = time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
		_, err := f.manager.CreateBackup(ctx)
		require.NoError(t, err)
	}

	victims, err := f.manager.PruneBackups(ctx)
	require.NoError(t, err)

	names := make([]string, 0, len(victims))
	for _, v := range victims {
		names = append(names, v.Name)
	}
	assert.ElementsMatch(t, []string{
		"foo-20240101T000000.tgz",
		"foo-20240102T000000.tgz",
	}, names)

	assert.NoFileExists(t, filepath.Join(f.dst, "foo-20240101T000000.tgz"))
	assert.FileExists(t, filepath.Join(f.dst, "foo-20240103T000000.tgz"))

	// Prune is idempotent: a second run selects nothing.
	second, err := f.manager.PruneBackups(ctx)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestPruneBackupsKeepAll(t *testing.T) {
	f := newLocalFixture(t, nil)
	ctx := context.Background()

	_, err := f.manager.CreateBackup(ctx)
	require.NoError(t, err)

	victims, err := f.manager.PruneBackups(ctx)
	require.NoError(t, err)
	assert.Empty(t, victims)

	backups, err := f.manager.ListBackups(ctx)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestRenameBackupsAppliesLabels(t *testing.T) {
	f := newLocalFixture(t, nil)
	ctx := context.Background()

	_, err := f.manager.CreateBackup(ctx)
	require.NoError(t, err)

	require.NoError(t, f.manager.RenameBackups(ctx))
	assert.FileExists(t, filepath.Join(f.dst, "foo-20240102T030405-yearly.tgz"))
	assert.NoFileExists(t, filepath.Join(f.dst, "foo-20240102T030405.tgz"))

	// Second pass: the label already matches, nothing moves.
	require.NoError(t, f.manager.RenameBackups(ctx))
	assert.FileExists(t, filepath.Join(f.dst, "foo-20240102T030405-yearly.tgz"))
}

func TestRenameBackupsStripsLabels(t *testing.T) {
	f := newLocalFixture(t, func(s *config.Settings) {
		s.LabelTimeUnits = false
	})
	ctx := context.Background()

	_, err := f.manager.CreateBackup(ctx)
	require.NoError(t, err)

	// Simulate a previously labeled inventory.
	require.NoError(t, os.Rename(
		filepath.Join(f.dst, "foo-20240102T030405.tgz"),
		filepath.Join(f.dst, "foo-20240102T030405-daily-abc12.tgz")))

	require.NoError(t, f.manager.RenameBackups(ctx))
	assert.FileExists(t, filepath.Join(f.dst, "foo-20240102T030405.tgz"))
}

func TestRestoreBackupRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, testhelpers.BuildTree(srcDir, map[string]string{
		"x.txt":     "x",
		"sub/y.txt": "y",
	}))

	f := newLocalFixture(t, func(s *config.Settings) {
		s.Sources = []string{srcDir}
		s.StripSourcePaths = true
	})
	ctx := context.Background()

	_, err := f.manager.CreateBackup(ctx)
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stale.txt"), []byte("old"), 0o644))

	ok, err := f.manager.RestoreBackup(ctx, dest, true)
	require.NoError(t, err)
	require.True(t, ok)

	assert.NoFileExists(t, filepath.Join(dest, "stale.txt"), "clean must empty the destination first")
	assert.NoError(t, testhelpers.CompareDirectories(srcDir, dest, "restore"))
}

func TestRestoreBackupInvalidDestination(t *testing.T) {
	f := newLocalFixture(t, nil)
	ctx := context.Background()

	t.Run("missing destination", func(t *testing.T) {
		ok, err := f.manager.RestoreBackup(ctx, filepath.Join(t.TempDir(), "missing"), false)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrRestoreDestination)
	})

	t.Run("destination is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

		ok, err := f.manager.RestoreBackup(ctx, file, false)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrRestoreDestination)
	})

	t.Run("no destination configured", func(t *testing.T) {
		ok, err := f.manager.RestoreBackup(ctx, "", false)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrRestoreDestination)
	})
}

func TestInventoryCacheInvalidation(t *testing.T) {
	f := newLocalFixture(t, nil)
	ctx := context.Background()

	locations, err := f.manager.StorageLocations(ctx)
	require.NoError(t, err)
	assert.Empty(t, locations[0].Backups)

	_, err = f.manager.CreateBackup(ctx)
	require.NoError(t, err)

	locations, err = f.manager.StorageLocations(ctx)
	require.NoError(t, err)
	assert.Len(t, locations[0].Backups, 1, "create must invalidate the cached inventory")
}

func TestCreateBackupLocationFailureSkipsOnlyThatLocation(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello\n"), 0o644))
	dst := t.TempDir()

	settings := config.Defaults()
	settings.Name = "foo"
	settings.Sources = []string{src}
	settings.StoragePaths = []string{dst}

	good, err := adapters.NewLocalStorage(dst)
	require.NoError(t, err)

	bad := mocks.NewMockStorageBackend()
	bad.PutFunc = func(ctx context.Context, localPath string, id string) error {
		return errors.New("disk full")
	}

	manager, err := NewBackupManager(
		settings,
		[]BoundLocation{
			{Backend: bad, StorageType: domain.StorageTypeLocal, StoragePath: "/bad"},
			{Backend: good, StorageType: domain.StorageTypeLocal, StoragePath: good.Root()},
		},
		t.TempDir(),
		adapters.NewNopLogger(),
		&fixedClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		nil,
		nil,
	)
	require.NoError(t, err)

	created, err := manager.CreateBackup(context.Background())
	require.NoError(t, err)
	require.Len(t, created, 1, "the failing location is skipped, the healthy one proceeds")
	assert.Equal(t, good.Root(), created[0].StoragePath)
}

func TestCreateBackupUsesDumpAsSoleSource(t *testing.T) {
	f := newLocalFixture(t, nil)
	ctx := context.Background()

	scratch := t.TempDir()
	dumpFile := filepath.Join(scratch, "dump.sql")
	require.NoError(t, os.WriteFile(dumpFile, []byte("-- dump"), 0o644))

	f.manager.dumper = &staticDumper{path: dumpFile}

	created, err := f.manager.CreateBackup(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)

	staged, err := f.manager.fetchForRestore(ctx, f.manager.locations[0], created[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"dump.sql"}, tarEntries(t, staged))
}

type staticDumper struct {
	path string
}

func (d *staticDumper) Dump(ctx context.Context) (string, error) {
	return d.path, nil
}
