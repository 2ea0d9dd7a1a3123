package domain

import (
	"fmt"
	"sort"
	"time"
)

// StorageLocation is one backend root plus the backups that live under it,
// sorted ascending by timestamp. All contained backups share the location's
// storage type and root.
type StorageLocation struct {
	StorageType StorageType
	StoragePath string
	Backups     []Backup
}

// SortBackups orders the location's backups ascending by timestamp, breaking
// ties by name so repeated builds see a stable inventory.
func (l *StorageLocation) SortBackups() {
	sort.Slice(l.Backups, func(i, j int) bool {
		if l.Backups[i].Timestamp.Equal(l.Backups[j].Timestamp) {
			return l.Backups[i].Name < l.Backups[j].Name
		}
		return l.Backups[i].Timestamp.Before(l.Backups[j].Timestamp)
	})
}

// Latest returns the most recent backup in the location, or false when empty.
func (l StorageLocation) Latest() (Backup, bool) {
	if len(l.Backups) == 0 {
		return Backup{}, false
	}
	return l.Backups[len(l.Backups)-1], true
}

// NewBackupName composes the filename for a backup created now. The retention
// class of a fresh backup is unknown until the inventory is reclassified, so
// the label is attached later by the rename step.
func (l StorageLocation) NewBackupName(name string, now time.Time) string {
	return ComposeBackupName(name, now.Format(TimestampLayout), "", "")
}

// ByTimeBucket assigns every backup exactly one retention class using the
// coarsest-unique rule: the most recent backup per calendar year is yearly,
// the most recent per calendar month among the rest is monthly, then per ISO
// week, day, hour, and minute. Backups still unclassified after all passes
// fall into the minutely class. The classes partition the backup list.
func (l StorageLocation) ByTimeBucket() map[TimeBucket][]Backup {
	classified := make(map[TimeBucket][]Backup, len(BucketsCoarsestFirst))
	remaining := append([]Backup(nil), l.Backups...)

	for _, bucket := range BucketsCoarsestFirst {
		latestPerPeriod := make(map[string]int, len(remaining))
		for i, backup := range remaining {
			key := periodKey(bucket, backup.Timestamp)
			if prev, ok := latestPerPeriod[key]; !ok || backup.Timestamp.After(remaining[prev].Timestamp) {
				latestPerPeriod[key] = i
			}
		}

		claimed := make(map[int]bool, len(latestPerPeriod))
		for _, i := range latestPerPeriod {
			claimed[i] = true
		}

		var next []Backup
		for i, backup := range remaining {
			if claimed[i] {
				classified[bucket] = append(classified[bucket], backup)
			} else {
				next = append(next, backup)
			}
		}
		remaining = next
	}

	// Identical timestamps yield one period representative per pass, so with
	// more duplicates than passes some backups survive unclassified; they
	// class as minutely.
	if len(remaining) > 0 {
		classified[BucketMinutely] = append(classified[BucketMinutely], remaining...)
		sortAscending(classified[BucketMinutely])
	}

	return classified
}

func periodKey(bucket TimeBucket, ts time.Time) string {
	switch bucket {
	case BucketYearly:
		return fmt.Sprintf("%d", ts.Year())
	case BucketMonthly:
		return fmt.Sprintf("%d-%02d", ts.Year(), ts.Month())
	case BucketWeekly:
		year, week := ts.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case BucketDaily:
		return ts.Format("2006-01-02")
	case BucketHourly:
		return ts.Format("2006-01-02T15")
	default:
		return ts.Format("2006-01-02T15:04")
	}
}

func sortAscending(backups []Backup) {
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].Timestamp.Equal(backups[j].Timestamp) {
			return backups[i].Name < backups[j].Name
		}
		return backups[i].Timestamp.Before(backups[j].Timestamp)
	})
}
