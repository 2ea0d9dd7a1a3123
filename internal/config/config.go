// Package config holds the closed settings schema and product constants.
// Settings are loaded once from the environment, validated at construction,
// and passed into the orchestrator as a value; nothing in the core reads
// ambient state afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tarnhelm/internal/core/domain"
)

// EnvPrefix scopes the recognized environment variables.
const EnvPrefix = "TARNHELM_"

// Compression and transfer tuning
const (
	DefaultCompressionLevel = 9
	MinCompressionLevel     = 1
	MaxCompressionLevel     = 9

	DownloadChunkSize = 8 * 1024
	S3PartSize        = 5 * 1024 * 1024 // 5 MB parts for multipart upload
	S3Concurrency     = 1               // Sequential upload to minimize memory
	S3MaxAttempts     = 10
	S3MaxDeleteBatch  = 1000
)

// File permissions
const (
	DirPermission  = 0o755
	FilePermission = 0o644
)

// AlwaysExcludeFilenames are OS metadata basenames never admitted into an
// archive regardless of the configured filters.
var AlwaysExcludeFilenames = map[string]bool{
	".DS_Store":                 true,
	".localized":                true,
	".Spotlight-V100":           true,
	".Trashes":                  true,
	"@eaDir":                    true,
	"Thumbs.db":                 true,
	"desktop.ini":               true,
	"ehthumbs.db":               true,
	"$RECYCLE.BIN":              true,
	"System Volume Information": true,
}

// ErrConfig is the root of all configuration failures.
var ErrConfig = errors.New("invalid configuration")

// Settings is the full recognized option set.
type Settings struct {
	Name         string
	Sources      []string
	StoragePaths []string
	StorageType  domain.StorageType

	AWSAccessKey  string
	AWSSecretKey  string
	AWSBucketName string
	AWSBucketPath string

	TimeZone *time.Location
	LogLevel string

	CompressionLevel int
	IncludeRegex     *regexp.Regexp
	ExcludeRegex     *regexp.Regexp
	StripSourcePaths bool
	LabelTimeUnits   bool

	MaxBackups        *int
	RetentionYearly   *int
	RetentionMonthly  *int
	RetentionWeekly   *int
	RetentionDaily    *int
	RetentionHourly   *int
	RetentionMinutely *int

	CleanBeforeRestore bool
	RestorePath        string
	ChownUID           *int
	ChownGID           *int

	// DBDumpCommand, when set, is the argv of the dump pre-step. Its single
	// output file becomes the sole source for the run.
	DBDumpCommand []string
}

// Defaults returns a Settings value with the product defaults applied.
func Defaults() *Settings {
	return &Settings{
		StorageType:      domain.StorageTypeLocal,
		TimeZone:         time.UTC,
		LogLevel:         "info",
		CompressionLevel: DefaultCompressionLevel,
		LabelTimeUnits:   true,
	}
}

// knownEnvKeys is the closed schema: any TARNHELM_* variable outside this set
// is rejected at construction.
var knownEnvKeys = map[string]bool{
	"NAME":                 true,
	"SOURCES":              true,
	"STORAGE_PATHS":        true,
	"STORAGE_TYPE":         true,
	"AWS_ACCESS_KEY":       true,
	"AWS_SECRET_KEY":       true,
	"AWS_S3_BUCKET_NAME":   true,
	"AWS_S3_BUCKET_PATH":   true,
	"TZ":                   true,
	"LOG_LEVEL":            true,
	"COMPRESSION_LEVEL":    true,
	"INCLUDE_REGEX":        true,
	"EXCLUDE_REGEX":        true,
	"STRIP_SOURCE_PATHS":   true,
	"LABEL_TIME_UNITS":     true,
	"MAX_BACKUPS":          true,
	"RETENTION_YEARLY":     true,
	"RETENTION_MONTHLY":    true,
	"RETENTION_WEEKLY":     true,
	"RETENTION_DAILY":      true,
	"RETENTION_HOURLY":     true,
	"RETENTION_MINUTELY":   true,
	"CLEAN_BEFORE_RESTORE": true,
	"RESTORE_PATH":         true,
	"CHOWN_UID":            true,
	"CHOWN_GID":            true,
	"DB_DUMP_COMMAND":      true,
}

// FromEnv builds Settings from TARNHELM_-prefixed environment variables.
// Unknown variables under the prefix are an error so that typos surface
// instead of silently applying defaults.
func FromEnv() (*Settings, error) {
	return fromEnviron(os.Environ())
}

func fromEnviron(environ []string) (*Settings, error) {
	s := Defaults()

	for _, entry := range environ {
		if !strings.HasPrefix(entry, EnvPrefix) {
			continue
		}
		key, value, _ := strings.Cut(strings.TrimPrefix(entry, EnvPrefix), "=")
		if !knownEnvKeys[key] {
			return nil, fmt.Errorf("%w: unknown option %s%s", ErrConfig, EnvPrefix, key)
		}
		if value == "" {
			continue
		}
		if err := s.apply(key, value); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Settings) apply(key, value string) error {
	var err error
	switch key {
	case "NAME":
		s.Name = value
	case "SOURCES":
		s.Sources = splitList(value)
	case "STORAGE_PATHS":
		s.StoragePaths = splitList(value)
	case "STORAGE_TYPE":
		s.StorageType, err = domain.ParseStorageType(value)
	case "AWS_ACCESS_KEY":
		s.AWSAccessKey = value
	case "AWS_SECRET_KEY":
		s.AWSSecretKey = value
	case "AWS_S3_BUCKET_NAME":
		s.AWSBucketName = value
	case "AWS_S3_BUCKET_PATH":
		s.AWSBucketPath = value
	case "TZ":
		s.TimeZone, err = time.LoadLocation(value)
	case "LOG_LEVEL":
		s.LogLevel = strings.ToLower(value)
	case "COMPRESSION_LEVEL":
		s.CompressionLevel, err = strconv.Atoi(value)
	case "INCLUDE_REGEX":
		s.IncludeRegex, err = regexp.Compile(value)
	case "EXCLUDE_REGEX":
		s.ExcludeRegex, err = regexp.Compile(value)
	case "STRIP_SOURCE_PATHS":
		s.StripSourcePaths, err = strconv.ParseBool(value)
	case "LABEL_TIME_UNITS":
		s.LabelTimeUnits, err = strconv.ParseBool(value)
	case "MAX_BACKUPS":
		s.MaxBackups, err = parseOptionalInt(value)
	case "RETENTION_YEARLY":
		s.RetentionYearly, err = parseOptionalInt(value)
	case "RETENTION_MONTHLY":
		s.RetentionMonthly, err = parseOptionalInt(value)
	case "RETENTION_WEEKLY":
		s.RetentionWeekly, err = parseOptionalInt(value)
	case "RETENTION_DAILY":
		s.RetentionDaily, err = parseOptionalInt(value)
	case "RETENTION_HOURLY":
		s.RetentionHourly, err = parseOptionalInt(value)
	case "RETENTION_MINUTELY":
		s.RetentionMinutely, err = parseOptionalInt(value)
	case "CLEAN_BEFORE_RESTORE":
		s.CleanBeforeRestore, err = strconv.ParseBool(value)
	case "RESTORE_PATH":
		s.RestorePath = value
	case "CHOWN_UID":
		s.ChownUID, err = parseOptionalInt(value)
	case "CHOWN_GID":
		s.ChownGID, err = parseOptionalInt(value)
	case "DB_DUMP_COMMAND":
		s.DBDumpCommand = strings.Fields(value)
	}
	if err != nil {
		return fmt.Errorf("%w: %s%s: %v", ErrConfig, EnvPrefix, key, err)
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseOptionalInt(value string) (*int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("must not be negative, got %d", n)
	}
	return &n, nil
}

// Validate checks the settings for coherence. Source paths are only required
// for the create flow and are checked there.
func (s *Settings) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: no backup name provided", ErrConfig)
	}

	if s.CompressionLevel < MinCompressionLevel || s.CompressionLevel > MaxCompressionLevel {
		return fmt.Errorf("%w: compression level must be within [%d,%d], got %d",
			ErrConfig, MinCompressionLevel, MaxCompressionLevel, s.CompressionLevel)
	}

	switch s.StorageType {
	case domain.StorageTypeLocal, domain.StorageTypeAWS, domain.StorageTypeAll:
	default:
		return fmt.Errorf("%w: unknown storage type %q", ErrConfig, s.StorageType)
	}

	if s.StorageType == domain.StorageTypeLocal || s.StorageType == domain.StorageTypeAll {
		if len(s.StoragePaths) == 0 {
			return fmt.Errorf("%w: no storage paths provided", ErrConfig)
		}
	}

	if s.StorageType == domain.StorageTypeAWS || s.StorageType == domain.StorageTypeAll {
		if s.AWSAccessKey == "" || s.AWSSecretKey == "" || s.AWSBucketName == "" {
			return fmt.Errorf("%w: AWS credentials are not set", ErrConfig)
		}
	}

	for _, source := range s.Sources {
		if _, err := os.Stat(source); err != nil {
			return fmt.Errorf("%w: source does not exist: %s", ErrConfig, source)
		}
	}

	return nil
}

// Location returns the configured time zone, defaulting to UTC.
func (s *Settings) Location() *time.Location {
	if s.TimeZone == nil {
		return time.UTC
	}
	return s.TimeZone
}

// RetentionPolicy resolves the retention inputs into a policy value.
// A configured max-backups count wins over per-bucket counts; with neither,
// every backup is kept.
func (s *Settings) RetentionPolicy() domain.RetentionPolicy {
	if s.MaxBackups != nil {
		return domain.CountBasedPolicy(*s.MaxBackups)
	}

	buckets := map[domain.TimeBucket]*int{
		domain.BucketYearly:   s.RetentionYearly,
		domain.BucketMonthly:  s.RetentionMonthly,
		domain.BucketWeekly:   s.RetentionWeekly,
		domain.BucketDaily:    s.RetentionDaily,
		domain.BucketHourly:   s.RetentionHourly,
		domain.BucketMinutely: s.RetentionMinutely,
	}

	limits := make(map[domain.TimeBucket]int)
	for bucket, n := range buckets {
		if n != nil {
			limits[bucket] = *n
		}
	}

	if len(limits) == 0 {
		return domain.KeepAllPolicy()
	}
	return domain.TimeBasedPolicy(limits)
}
