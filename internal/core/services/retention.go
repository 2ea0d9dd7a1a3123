package services

import (
	"tarnhelm/internal/core/domain"
)

// PruneVictims selects the backups a retention policy would remove from one
// storage location. Selection is pure; execution happens in the manager so
// that local victims delete per-object while object-store victims batch.
//
// Count-based policies keep the newest MaxKeep backups. Time-based policies
// classify the location's backups with the coarsest-unique rule and keep the
// newest Limit(bucket) per bucket, zero when unset. Keep-all selects nothing.
func PruneVictims(location domain.StorageLocation, policy domain.RetentionPolicy) []domain.Backup {
	switch policy.Type {
	case domain.RetentionKeepAll:
		return nil

	case domain.RetentionCountBased:
		return oldestBeyond(location.Backups, policy.MaxKeep)

	case domain.RetentionTimeBased:
		classified := location.ByTimeBucket()
		var victims []domain.Backup
		for _, bucket := range domain.BucketsCoarsestFirst {
			victims = append(victims, oldestBeyond(classified[bucket], policy.Limit(bucket))...)
		}
		return victims
	}

	return nil
}

// oldestBeyond returns the backups left over after keeping the newest keep
// entries of an ascending-sorted list.
func oldestBeyond(backups []domain.Backup, keep int) []domain.Backup {
	if len(backups) <= keep {
		return nil
	}
	victims := make([]domain.Backup, 0, len(backups)-keep)
	return append(victims, backups[:len(backups)-keep]...)
}
