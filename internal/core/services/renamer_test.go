package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarnhelm/internal/core/domain"
)

func namedLocation(names ...string) domain.StorageLocation {
	loc := domain.StorageLocation{StorageType: domain.StorageTypeLocal, StoragePath: "/backups"}
	for _, name := range names {
		parsed, ok := domain.ParseBackupName(name, time.UTC)
		if !ok {
			panic("test fixture name must parse: " + name)
		}
		loc.Backups = append(loc.Backups, domain.Backup{
			StorageType: domain.StorageTypeLocal,
			Name:        name,
			Timestamp:   parsed.Timestamp,
		})
	}
	loc.SortBackups()
	return loc
}

func pending(actions []RenameAction) []RenameAction {
	var out []RenameAction
	for _, a := range actions {
		if a.Do {
			out = append(out, a)
		}
	}
	return out
}

func TestPlanRenamesLabeled(t *testing.T) {
	loc := namedLocation(
		"foo-20230601T000000.tgz",
		"foo-20240101T000000.tgz",
	)

	actions := PlanRenames(loc, true, time.UTC)
	require.Len(t, actions, 2)

	byOld := make(map[string]RenameAction)
	for _, a := range actions {
		byOld[a.Backup.Name] = a
	}

	// Both are their year's most recent representative, so both take the
	// yearly label.
	assert.True(t, byOld["foo-20230601T000000.tgz"].Do)
	assert.Equal(t, "foo-20230601T000000-yearly.tgz", byOld["foo-20230601T000000.tgz"].NewName)
	assert.True(t, byOld["foo-20240101T000000.tgz"].Do)
	assert.Equal(t, "foo-20240101T000000-yearly.tgz", byOld["foo-20240101T000000.tgz"].NewName)
}

func TestPlanRenamesLabeledAlreadyCorrect(t *testing.T) {
	loc := namedLocation(
		"foo-20230601T000000-yearly.tgz",
		"foo-20240101T000000-yearly.tgz",
	)

	actions := PlanRenames(loc, true, time.UTC)
	assert.Empty(t, pending(actions), "correctly labeled backups must be untouched")
}

func TestPlanRenamesLabeledDropsUID(t *testing.T) {
	loc := namedLocation("foo-20240101T000000-abc12.tgz")

	actions := PlanRenames(loc, true, time.UTC)
	require.Len(t, actions, 1)
	assert.True(t, actions[0].Do)
	assert.Equal(t, "foo-20240101T000000-yearly.tgz", actions[0].NewName)
}

func TestPlanRenamesUnlabeled(t *testing.T) {
	loc := namedLocation(
		"foo-20230601T000000-yearly.tgz",
		"foo-20240101T000000-daily-abc12.tgz",
		"foo-20240201T000000.tgz",
	)

	actions := PlanRenames(loc, false, time.UTC)
	require.Len(t, actions, 3)

	byOld := make(map[string]RenameAction)
	for _, a := range actions {
		byOld[a.Backup.Name] = a
	}

	assert.Equal(t, "foo-20230601T000000.tgz", byOld["foo-20230601T000000-yearly.tgz"].NewName)
	assert.True(t, byOld["foo-20230601T000000-yearly.tgz"].Do)

	assert.Equal(t, "foo-20240101T000000.tgz", byOld["foo-20240101T000000-daily-abc12.tgz"].NewName)
	assert.True(t, byOld["foo-20240101T000000-daily-abc12.tgz"].Do)

	assert.False(t, byOld["foo-20240201T000000.tgz"].Do, "already-bare names are untouched")
}

func TestPlanRenamesCollision(t *testing.T) {
	// Two backups with identical timestamps but different uids: stripping
	// the uids would make both renames target the same filename, so the
	// collision resolver must suffix both with distinct fresh uids.
	loc := namedLocation(
		"foo-20240101T000000-abc12.tgz",
		"foo-20240101T000000-def34.tgz",
	)

	actions := PlanRenames(loc, false, time.UTC)
	todo := pending(actions)
	require.Len(t, todo, 2)

	names := make(map[string]bool)
	for _, action := range todo {
		parsed, ok := domain.ParseBackupName(action.NewName, time.UTC)
		require.True(t, ok, "collision-resolved name must parse: %s", action.NewName)
		assert.NotEmpty(t, parsed.UID, "colliding targets must carry a fresh uid")
		names[action.NewName] = true
	}
	assert.Len(t, names, 2, "resolved names must be distinct")
}

func TestPlanRenamesLabeledCollision(t *testing.T) {
	// More same-minute backups than classification passes: the leftovers
	// join the minutely class, so several renames target the minutely name.
	names := []string{
		"foo-20240101T000000-aaa01.tgz",
		"foo-20240101T000000-aaa02.tgz",
		"foo-20240101T000000-aaa03.tgz",
		"foo-20240101T000000-aaa04.tgz",
		"foo-20240101T000000-aaa05.tgz",
		"foo-20240101T000000-aaa06.tgz",
		"foo-20240101T000000-aaa07.tgz",
	}
	loc := namedLocation(names...)

	actions := PlanRenames(loc, true, time.UTC)
	require.Len(t, actions, len(names))

	resolved := make(map[string]bool)
	for _, action := range actions {
		_, ok := domain.ParseBackupName(action.NewName, time.UTC)
		require.True(t, ok, "resolved name must parse: %s", action.NewName)
		resolved[action.NewName] = true
	}
	assert.Len(t, resolved, len(names), "every target filename must be unique after collision resolution")
}

// Applying the planned renames and planning again must yield zero actions.
func TestRenameIdempotence(t *testing.T) {
	loc := namedLocation(
		"foo-20230101T000000.tgz",
		"foo-20230601T000000-weekly.tgz",
		"foo-20240101T000000-abc12.tgz",
	)

	for _, labeled := range []bool{true, false} {
		actions := PlanRenames(loc, labeled, time.UTC)

		renamed := domain.StorageLocation{
			StorageType: loc.StorageType,
			StoragePath: loc.StoragePath,
		}
		for _, action := range actions {
			parsed, ok := domain.ParseBackupName(action.NewName, time.UTC)
			require.True(t, ok)
			renamed.Backups = append(renamed.Backups, domain.Backup{
				StorageType: loc.StorageType,
				Name:        action.NewName,
				Timestamp:   parsed.Timestamp,
			})
		}
		renamed.SortBackups()

		second := PlanRenames(renamed, labeled, time.UTC)
		assert.Empty(t, pending(second), "labeled=%v: second rename pass must plan nothing", labeled)
	}
}
