// Package domain defines the backup engine's core types: backups, storage
// locations, time buckets, retention policies, and the backup filename grammar.
//
// The filename grammar is the cross-version compatibility surface:
//
//	<name>-<timestamp>[-<bucket>][-<uid>].tgz
//
// where timestamp is YYYYMMDDTHHMMSS in the configured time zone, bucket is an
// optional retention class label, and uid is an optional base36 disambiguator.
package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// StorageType identifies the kind of backend a backup lives on.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeAWS   StorageType = "aws"
	StorageTypeAll   StorageType = "all"
)

// ParseStorageType validates a storage type string from configuration.
func ParseStorageType(s string) (StorageType, error) {
	switch StorageType(s) {
	case StorageTypeLocal, StorageTypeAWS, StorageTypeAll:
		return StorageType(s), nil
	}
	return "", fmt.Errorf("unknown storage type: %q", s)
}

// Backup naming constants
const (
	BackupExtension = "tgz"
	TimestampLayout = "20060102T150405"
)

// backupNameRegex anchors the timestamp to the optional bucket/uid fields and
// the extension so that a backup name containing a digits-and-T substring
// cannot shadow the real timestamp.
var backupNameRegex = regexp.MustCompile(
	`^(?P<name>.+)-(?P<timestamp>\d{8}T\d{6})` +
		`(?:-(?P<bucket>minutely|hourly|daily|weekly|monthly|yearly))?` +
		`(?:-(?P<uid>[0-9a-z]{1,5}))?\.` + BackupExtension + `$`)

// ParsedName holds the fields extracted from a backup filename.
type ParsedName struct {
	Name         string
	TimestampRaw string
	Timestamp    time.Time
	Bucket       TimeBucket // empty when the name carries no label
	UID          string     // empty when the name carries no disambiguator
}

// ParseBackupName extracts the grammar fields from a backup filename.
// The timestamp is interpreted in loc. Filenames that do not match the
// grammar return ok=false; listings skip them rather than failing.
func ParseBackupName(filename string, loc *time.Location) (ParsedName, bool) {
	if loc == nil {
		loc = time.UTC
	}

	match := backupNameRegex.FindStringSubmatch(filename)
	if match == nil {
		return ParsedName{}, false
	}

	parsed := ParsedName{}
	for i, group := range backupNameRegex.SubexpNames() {
		switch group {
		case "name":
			parsed.Name = match[i]
		case "timestamp":
			parsed.TimestampRaw = match[i]
		case "bucket":
			parsed.Bucket = TimeBucket(match[i])
		case "uid":
			parsed.UID = match[i]
		}
	}

	ts, err := time.ParseInLocation(TimestampLayout, parsed.TimestampRaw, loc)
	if err != nil {
		return ParsedName{}, false
	}
	parsed.Timestamp = ts

	return parsed, true
}

// ComposeBackupName rebuilds a filename from its parts. Composing the fields
// of a parsed name yields the original filename.
func ComposeBackupName(name string, timestampRaw string, bucket TimeBucket, uid string) string {
	composed := name + "-" + timestampRaw
	if bucket != "" {
		composed += "-" + string(bucket)
	}
	if uid != "" {
		composed += "-" + uid
	}
	return composed + "." + BackupExtension
}

// NewUID returns a short random base36 disambiguator with 24 bits of entropy,
// appended to backup names that would otherwise collide.
func NewUID() string {
	u := uuid.New()
	n := uint64(u[0])<<16 | uint64(u[1])<<8 | uint64(u[2])
	return strconv.FormatUint(n, 36)
}

// Backup is one addressable archive on a storage backend. For local backups
// Path holds the absolute filesystem path; for object-store backups the Name
// doubles as the object key without the bucket-path prefix. A Backup is
// immutable except through rename; delete destroys it.
type Backup struct {
	StorageType StorageType
	Name        string
	Path        string
	StoragePath string
	Timestamp   time.Time
}

// ID returns the backend identifier for this backup.
func (b Backup) ID() string {
	if b.StorageType == StorageTypeLocal {
		return b.Path
	}
	return b.Name
}
