package services

import (
	"time"

	"tarnhelm/internal/core/domain"
)

// RenameAction is one planned rename of an existing backup. Do is false when
// the current name already matches the desired one; those entries still
// participate in collision detection.
type RenameAction struct {
	Backup  domain.Backup
	NewName string
	Do      bool
}

// PlanRenames recomputes the desired filename of every backup in a location.
// In labeled mode each backup's name is rewritten to carry its coarsest-unique
// retention class; names already carrying the right class are untouched. In
// unlabeled mode both the class label and the uid are stripped.
func PlanRenames(location domain.StorageLocation, labeled bool, loc *time.Location) []RenameAction {
	var actions []RenameAction
	if labeled {
		actions = planLabeled(location, loc)
	} else {
		actions = planUnlabeled(location, loc)
	}
	return resolveCollisions(actions)
}

func planLabeled(location domain.StorageLocation, loc *time.Location) []RenameAction {
	var actions []RenameAction

	for bucket, backups := range location.ByTimeBucket() {
		for _, backup := range backups {
			parsed, ok := domain.ParseBackupName(backup.Name, loc)
			if !ok {
				continue
			}
			if parsed.Bucket == bucket {
				actions = append(actions, RenameAction{Backup: backup, NewName: backup.Name})
				continue
			}

			actions = append(actions, RenameAction{
				Backup:  backup,
				NewName: domain.ComposeBackupName(parsed.Name, parsed.TimestampRaw, bucket, ""),
				Do:      true,
			})
		}
	}

	return actions
}

func planUnlabeled(location domain.StorageLocation, loc *time.Location) []RenameAction {
	var actions []RenameAction

	for _, backup := range location.Backups {
		parsed, ok := domain.ParseBackupName(backup.Name, loc)
		if !ok {
			continue
		}

		newName := domain.ComposeBackupName(parsed.Name, parsed.TimestampRaw, "", "")
		actions = append(actions, RenameAction{
			Backup:  backup,
			NewName: newName,
			Do:      newName != backup.Name,
		})
	}

	return actions
}

// resolveCollisions suffixes every pending target that shares its new
// filename with any other action in the same location with a fresh uid.
func resolveCollisions(actions []RenameAction) []RenameAction {
	counts := make(map[string]int, len(actions))
	for _, action := range actions {
		counts[action.NewName]++
	}

	for i, action := range actions {
		if !action.Do || counts[action.NewName] < 2 {
			continue
		}
		parsed, ok := domain.ParseBackupName(action.NewName, time.UTC)
		if !ok {
			continue
		}
		actions[i].NewName = domain.ComposeBackupName(
			parsed.Name, parsed.TimestampRaw, parsed.Bucket, domain.NewUID())
	}

	return actions
}
