package domain

// RetentionPolicyType selects the active retention variant.
type RetentionPolicyType int

const (
	// RetentionKeepAll never selects victims.
	RetentionKeepAll RetentionPolicyType = iota
	// RetentionCountBased keeps the newest N backups per storage location.
	RetentionCountBased
	// RetentionTimeBased keeps a configured number of backups per time bucket.
	RetentionTimeBased
)

// RetentionPolicy is a tagged value: exactly one variant is active. When both
// a max-backups count and per-bucket counts are configured, the count-based
// policy wins.
type RetentionPolicy struct {
	Type    RetentionPolicyType
	MaxKeep int
	Buckets map[TimeBucket]int
}

// KeepAllPolicy retains every backup.
func KeepAllPolicy() RetentionPolicy {
	return RetentionPolicy{Type: RetentionKeepAll}
}

// CountBasedPolicy keeps the newest maxKeep backups per location.
func CountBasedPolicy(maxKeep int) RetentionPolicy {
	return RetentionPolicy{Type: RetentionCountBased, MaxKeep: maxKeep}
}

// TimeBasedPolicy keeps the configured number of backups per bucket.
// Unset buckets keep zero.
func TimeBasedPolicy(buckets map[TimeBucket]int) RetentionPolicy {
	return RetentionPolicy{Type: RetentionTimeBased, Buckets: buckets}
}

// Limit returns how many backups the policy keeps in the given bucket.
// Only meaningful for time-based policies; unset buckets keep zero.
func (p RetentionPolicy) Limit(bucket TimeBucket) int {
	return p.Buckets[bucket]
}
