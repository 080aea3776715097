package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Storage backends
const (
	StorageBackendWebDAV = "webdav"
	StorageBackendS3     = "s3"
)

// Dedup backends
const (
	DedupBackendMemory   = "memory"
	DedupBackendRedis    = "redis"
	DedupBackendPostgres = "postgres"
)

// DefaultMaxFileSizeMB is the attachment size ceiling when MAX_FILE_SIZE_MB is unset
const DefaultMaxFileSizeMB = 300

const (
	reservationMargin = 5 * time.Minute
	minReservationTTL = 15 * time.Minute
)

// Config holds all configuration for the backup service
type Config struct {
	Line    LineConfig
	Storage StorageConfig
	Backup  BackupConfig
	Source  SourceConfig
	Dedup   DedupConfig
	Admin   AdminConfig
	Kafka   KafkaConfig
	Logging LoggingConfig
	Service ServiceConfig
}

// LineConfig holds LINE Messaging API configuration
type LineConfig struct {
	ChannelSecret      string
	ChannelAccessToken string
	APIBaseURL         string
	DataBaseURL        string
	EnableReplies      bool
	RequestTimeout     time.Duration
	ContentTimeout     time.Duration
	MessagesPerSecond  float64
}

// StorageConfig holds remote storage configuration
type StorageConfig struct {
	Backend  string
	BasePath string
	WebDAV   WebDAVConfig
	S3       S3Config
}

// WebDAVConfig holds Nextcloud/WebDAV configuration
type WebDAVConfig struct {
	URL           string
	RootPath      string
	User          string
	Password      string
	Timeout       time.Duration
	UploadTimeout time.Duration
}

// S3Config holds S3/MinIO configuration
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// BackupConfig holds upload pipeline configuration
type BackupConfig struct {
	MaxFileSizeMB      float64
	StagingDir         string
	MaxAttempts        int
	RetryDelay         time.Duration
	TimeZone           string
	Location           *time.Location
	EnableTextBackup   bool
	UploadedHashesFile string
	StatsFile          string
	MaxConcurrency     int
	// MaxPending caps events accepted but not yet finished
	MaxPending int
}

// SourceConfig holds source folder mapping configuration
type SourceConfig struct {
	MapFile   string
	StaticMap string
	StateFile string
}

// DedupConfig holds processed event store configuration
type DedupConfig struct {
	Backend          string
	ProcessedIDsFile string
	CommitOnFailure  bool
	TTL              time.Duration
	// PendingTTL frees a reservation whose holder died mid-processing
	PendingTTL time.Duration
	Redis      RedisConfig
	Database         DatabaseConfig
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// AdminConfig holds admin API configuration
type AdminConfig struct {
	Password        string
	MaxFailedLogins int
	LockDuration    time.Duration
}

// KafkaConfig holds Kafka configuration for backup events
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Name            string
	Port            string
	MaxBodyBytes    int
	ShutdownTimeout time.Duration
}

// Result is fx.Out struct for providing config dependencies
type Result struct {
	fx.Out

	Config         *Config
	LineConfig     *LineConfig
	StorageConfig  *StorageConfig
	BackupConfig   *BackupConfig
	SourceConfig   *SourceConfig
	DedupConfig    *DedupConfig
	DatabaseConfig *DatabaseConfig
	AdminConfig    *AdminConfig
	KafkaConfig    *KafkaConfig
	LoggingConfig  *LoggingConfig
	ServiceConfig  *ServiceConfig
}

// Out returns fx-compatible config result
func Out() (Result, error) {
	cfg, err := Load()
	if err != nil {
		return Result{}, err
	}

	return Result{
		Config:         cfg,
		LineConfig:     &cfg.Line,
		StorageConfig:  &cfg.Storage,
		BackupConfig:   &cfg.Backup,
		SourceConfig:   &cfg.Source,
		DedupConfig:    &cfg.Dedup,
		DatabaseConfig: &cfg.Dedup.Database,
		AdminConfig:    &cfg.Admin,
		KafkaConfig:    &cfg.Kafka,
		LoggingConfig:  &cfg.Logging,
		ServiceConfig:  &cfg.Service,
	}, nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Line: LineConfig{
			ChannelSecret:      strings.TrimSpace(os.Getenv("LINE_CHANNEL_SECRET")),
			ChannelAccessToken: strings.TrimSpace(os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")),
			APIBaseURL:         strings.TrimRight(getEnv("LINE_API_BASE_URL", "https://api.line.me"), "/"),
			DataBaseURL:        strings.TrimRight(getEnv("LINE_DATA_BASE_URL", "https://api-data.line.me"), "/"),
			EnableReplies:      getEnvBool("ENABLE_LINE_REPLIES", false),
			RequestTimeout:     getEnvDuration("LINE_REQUEST_TIMEOUT", 10*time.Second),
			ContentTimeout:     getEnvDuration("LINE_CONTENT_TIMEOUT", 5*time.Minute),
			MessagesPerSecond:  getEnvFloat("LINE_MESSAGES_PER_SECOND", 10),
		},
		Storage: StorageConfig{
			Backend:  strings.ToLower(getEnv("STORAGE_BACKEND", StorageBackendWebDAV)),
			BasePath: strings.Trim(getEnv("NEXTCLOUD_BASE_PATH", "LINE_Backup"), "/"),
			WebDAV: WebDAVConfig{
				URL:           strings.TrimRight(os.Getenv("NEXTCLOUD_URL"), "/"),
				RootPath:      getEnv("WEBDAV_ROOT_PATH", "/remote.php/webdav"),
				User:          strings.TrimSpace(os.Getenv("NEXTCLOUD_USER")),
				Password:      strings.TrimSpace(os.Getenv("NEXTCLOUD_PASSWORD")),
				Timeout:       getEnvDuration("WEBDAV_TIMEOUT", 30*time.Second),
				UploadTimeout: getEnvDuration("WEBDAV_UPLOAD_TIMEOUT", 2*time.Minute),
			},
			S3: S3Config{
				Endpoint:  os.Getenv("S3_ENDPOINT"),
				AccessKey: os.Getenv("S3_ACCESS_KEY"),
				SecretKey: os.Getenv("S3_SECRET_KEY"),
				Bucket:    os.Getenv("S3_BUCKET"),
				UseSSL:    getEnvBool("S3_USE_SSL", true),
			},
		},
		Backup: BackupConfig{
			MaxFileSizeMB:      getEnvFloat("MAX_FILE_SIZE_MB", DefaultMaxFileSizeMB),
			StagingDir:         getEnv("STAGING_DIR", os.TempDir()),
			MaxAttempts:        getEnvInt("UPLOAD_MAX_ATTEMPTS", 3),
			RetryDelay:         getEnvDuration("UPLOAD_RETRY_DELAY", 1500*time.Millisecond),
			TimeZone:           getEnv("TIMEZONE", "Asia/Taipei"),
			EnableTextBackup:   getEnvBool("ENABLE_TEXT_BACKUP", false),
			UploadedHashesFile: strings.TrimSpace(getEnv("UPLOADED_HASHES_FILE", "data/uploaded_hashes.json")),
			StatsFile:          strings.TrimSpace(getEnv("STATS_FILE", "data/backup_stats.json")),
			MaxConcurrency:     getEnvInt("WEBHOOK_MAX_CONCURRENCY", 16),
			MaxPending:         getEnvInt("WEBHOOK_MAX_PENDING", 1024),
		},
		Source: SourceConfig{
			MapFile:   strings.TrimSpace(getEnv("SOURCE_MAP_FILE", "data/source_map.json")),
			StaticMap: os.Getenv("SOURCE_MAP"),
			StateFile: strings.TrimSpace(getEnv("SOURCE_STATE_FILE", "data/source_state.json")),
		},
		Dedup: DedupConfig{
			Backend:          strings.ToLower(getEnv("DEDUP_BACKEND", DedupBackendMemory)),
			ProcessedIDsFile: strings.TrimSpace(getEnv("PROCESSED_IDS_FILE", "data/processed_ids.json")),
			CommitOnFailure:  getEnvBool("DEDUP_COMMIT_ON_FAILURE", true),
			TTL:              getEnvDuration("DEDUP_TTL", 72*time.Hour),
			Redis: RedisConfig{
				Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
				Password: os.Getenv("REDIS_PASSWORD"),
				DB:       getEnvInt("REDIS_DB", 0),
			},
			Database: DatabaseConfig{
				Host:     getEnv("DATABASE_HOST", "localhost"),
				Port:     getEnv("DATABASE_PORT", "5432"),
				User:     getEnv("DATABASE_USER", "backup_user"),
				Password: getEnv("DATABASE_PASSWORD", "backup_pass"),
				DBName:   getEnv("DATABASE_NAME", "line_backup"),
				SSLMode:  getEnv("DATABASE_SSLMODE", "disable"),
			},
		},
		Admin: AdminConfig{
			Password:        strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),
			MaxFailedLogins: getEnvInt("ADMIN_MAX_FAILED_LOGINS", 5),
			LockDuration:    getEnvDuration("ADMIN_LOCK_DURATION", 15*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC_BACKUP", "line-backup.events"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Service: ServiceConfig{
			Name:            getEnv("SERVICE_NAME", "line-backup-bot"),
			Port:            getEnv("SERVICE_PORT", "8000"),
			MaxBodyBytes:    getEnvInt("MAX_WEBHOOK_BODY_BYTES", 1<<20),
			ShutdownTimeout: ShutdownTimeout(),
		},
	}

	loc, err := loadLocation(cfg.Backup.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Backup.Location = loc
	cfg.Dedup.PendingTTL = getEnvDuration("DEDUP_PENDING_TTL", cfg.reservationWindow())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Line.ChannelSecret == "" {
		return fmt.Errorf("LINE_CHANNEL_SECRET is required")
	}

	if c.Line.ChannelAccessToken == "" {
		return fmt.Errorf("LINE_CHANNEL_ACCESS_TOKEN is required")
	}

	switch c.Storage.Backend {
	case StorageBackendWebDAV:
		if c.Storage.WebDAV.URL == "" {
			return fmt.Errorf("NEXTCLOUD_URL is required")
		}
		if c.Storage.WebDAV.User == "" {
			return fmt.Errorf("NEXTCLOUD_USER is required")
		}
		if c.Storage.WebDAV.Password == "" {
			return fmt.Errorf("NEXTCLOUD_PASSWORD is required")
		}
	case StorageBackendS3:
		if c.Storage.S3.Endpoint == "" {
			return fmt.Errorf("S3_ENDPOINT is required")
		}
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND: %s", c.Storage.Backend)
	}

	switch c.Dedup.Backend {
	case DedupBackendMemory, DedupBackendRedis, DedupBackendPostgres:
	default:
		return fmt.Errorf("unsupported DEDUP_BACKEND: %s", c.Dedup.Backend)
	}

	if c.Backup.MaxAttempts < 1 {
		return fmt.Errorf("UPLOAD_MAX_ATTEMPTS must be at least 1")
	}

	if c.Backup.MaxFileSizeMB <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE_MB must be positive")
	}

	if c.Backup.MaxConcurrency < 1 {
		c.Backup.MaxConcurrency = 1
	}

	if c.Backup.MaxPending < c.Backup.MaxConcurrency {
		c.Backup.MaxPending = c.Backup.MaxConcurrency
	}

	return nil
}

// reservationWindow is the longest one event can hold its dedup reservation:
// every download and upload attempt running to its timeout, plus the backoff between them.
func (c *Config) reservationWindow() time.Duration {
	attempts := time.Duration(max(c.Backup.MaxAttempts, 1))
	backoff := c.Backup.RetryDelay * attempts * (attempts - 1) / 2
	download := attempts*c.Line.ContentTimeout + backoff
	upload := attempts*(c.Storage.WebDAV.Timeout+c.Storage.WebDAV.UploadTimeout) + backoff
	return max(download+upload+reservationMargin, minReservationTTL)
}

// ShutdownTimeout returns SHUTDOWN_TIMEOUT, the time allowed for all stop hooks together
func ShutdownTimeout() time.Duration {
	_ = godotenv.Load()
	return getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
}

// MaxFileSizeBytes returns the size ceiling in bytes, 0 means no limit
func (c *BackupConfig) MaxFileSizeBytes() int64 {
	if c.MaxFileSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxFileSizeMB * 1024 * 1024)
}

// GetDSN returns database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

var (
	requiredKeys    = []string{"LINE_CHANNEL_SECRET", "LINE_CHANNEL_ACCESS_TOKEN", "NEXTCLOUD_URL", "NEXTCLOUD_USER", "NEXTCLOUD_PASSWORD"}
	recommendedKeys = []string{"ADMIN_PASSWORD", "SOURCE_MAP_FILE"}
)

// MissingConfig returns required and recommended keys that are not set
func MissingConfig() (missingRequired, missingRecommended []string) {
	for _, key := range requiredKeys {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missingRequired = append(missingRequired, key)
		}
	}
	for _, key := range recommendedKeys {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missingRecommended = append(missingRecommended, key)
		}
	}
	return missingRequired, missingRecommended
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool gets environment variable as bool ("1", "true", "yes") with default value
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// getEnvInt gets environment variable as int with default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvFloat gets environment variable as float with default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvDuration gets environment variable as duration with default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
