package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	Storage      StorageConfig
	Media        MediaConfig
	Track        TrackConfig
	PubSub       PubSubConfig
	Queues       QueuesConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TRACE_APP_ENV" required:"true"`
	Port         string `envconfig:"TRACE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TRACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TRACE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TRACE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TRACE_DB_DSN"`
	Driver string `envconfig:"TRACE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TRACE_DB_HOST"`
	Port     int    `envconfig:"TRACE_DB_PORT" default:"5432"`
	User     string `envconfig:"TRACE_DB_USER"`
	Password string `envconfig:"TRACE_DB_PASSWORD"`
	Name     string `envconfig:"TRACE_DB_NAME"`
	SSLMode  string `envconfig:"TRACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TRACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TRACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TRACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TRACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("db config: either TRACE_DB_DSN or host/user/name parts are required")
	}
	d.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"TRACE_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"TRACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TRACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TRACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TRACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TRACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TRACE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TRACE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TRACE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TRACE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TRACE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type StorageConfig struct {
	BucketName        string        `envconfig:"TRACE_STORAGE_BUCKET_NAME" required:"true"`
	UploadURLExpiry   time.Duration `envconfig:"TRACE_STORAGE_UPLOAD_URL_EXPIRY" default:"5m"`
	DownloadURLExpiry time.Duration `envconfig:"TRACE_STORAGE_DOWNLOAD_URL_EXPIRY" default:"15m"`
}

type MediaConfig struct {
	MaxUploadMB      int `envconfig:"TRACE_MEDIA_MAX_UPLOAD_MB" default:"200"`
	MaxBatchSize     int `envconfig:"TRACE_MEDIA_MAX_BATCH_SIZE" default:"50"`
	ThumbnailSize    int `envconfig:"TRACE_MEDIA_THUMBNAIL_SIZE" default:"300"`
	ThumbnailQuality int `envconfig:"TRACE_MEDIA_THUMBNAIL_QUALITY" default:"80"`
}

// MaxUploadBytes returns the per-file byte ceiling for moment uploads.
func (m MediaConfig) MaxUploadBytes() int64 {
	return int64(m.MaxUploadMB) * 1024 * 1024
}

type TrackConfig struct {
	MaxUploadMB  int     `envconfig:"TRACE_TRACK_MAX_UPLOAD_MB" default:"100"`
	MinDistanceM float64 `envconfig:"TRACE_TRACK_MIN_DISTANCE_M" default:"2"`
	EarthRadiusM float64 `envconfig:"TRACE_TRACK_EARTH_RADIUS_M" default:"6371000"`
}

// MaxUploadBytes returns the byte ceiling for track file uploads.
func (t TrackConfig) MaxUploadBytes() int64 {
	return int64(t.MaxUploadMB) * 1024 * 1024
}

type PubSubConfig struct {
	ImageTopic        string `envconfig:"TRACE_PUBSUB_IMAGE_TOPIC" default:"media-image"`
	ImageSubscription string `envconfig:"TRACE_PUBSUB_IMAGE_SUBSCRIPTION" default:"media-image-worker"`
	VideoTopic        string `envconfig:"TRACE_PUBSUB_VIDEO_TOPIC" default:"media-video"`
	VideoSubscription string `envconfig:"TRACE_PUBSUB_VIDEO_SUBSCRIPTION" default:"media-video-worker"`
	TrackTopic        string `envconfig:"TRACE_PUBSUB_TRACK_TOPIC" default:"media-track"`
	TrackSubscription string `envconfig:"TRACE_PUBSUB_TRACK_SUBSCRIPTION" default:"media-track-worker"`
}

// QueueSettings bound one queue's worker pool and retry policy. Backoff is
// enforced by the subscription's retry policy; MaxAttempts is the delivery
// ceiling after which the worker marks the record failed and acks.
type QueueSettings struct {
	Concurrency int
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

type QueuesConfig struct {
	ImageConcurrency int           `envconfig:"TRACE_QUEUE_IMAGE_CONCURRENCY" default:"8"`
	ImageMaxAttempts int           `envconfig:"TRACE_QUEUE_IMAGE_MAX_ATTEMPTS" default:"3"`
	ImageMinBackoff  time.Duration `envconfig:"TRACE_QUEUE_IMAGE_MIN_BACKOFF" default:"1s"`
	ImageMaxBackoff  time.Duration `envconfig:"TRACE_QUEUE_IMAGE_MAX_BACKOFF" default:"1m"`

	VideoConcurrency int           `envconfig:"TRACE_QUEUE_VIDEO_CONCURRENCY" default:"2"`
	VideoMaxAttempts int           `envconfig:"TRACE_QUEUE_VIDEO_MAX_ATTEMPTS" default:"5"`
	VideoMinBackoff  time.Duration `envconfig:"TRACE_QUEUE_VIDEO_MIN_BACKOFF" default:"5s"`
	VideoMaxBackoff  time.Duration `envconfig:"TRACE_QUEUE_VIDEO_MAX_BACKOFF" default:"5m"`

	TrackConcurrency int           `envconfig:"TRACE_QUEUE_TRACK_CONCURRENCY" default:"2"`
	TrackMaxAttempts int           `envconfig:"TRACE_QUEUE_TRACK_MAX_ATTEMPTS" default:"3"`
	TrackMinBackoff  time.Duration `envconfig:"TRACE_QUEUE_TRACK_MIN_BACKOFF" default:"2s"`
	TrackMaxBackoff  time.Duration `envconfig:"TRACE_QUEUE_TRACK_MAX_BACKOFF" default:"2m"`
}

// Image returns the image queue settings.
func (q QueuesConfig) Image() QueueSettings {
	return QueueSettings{
		Concurrency: q.ImageConcurrency,
		MaxAttempts: q.ImageMaxAttempts,
		MinBackoff:  q.ImageMinBackoff,
		MaxBackoff:  q.ImageMaxBackoff,
	}
}

// Video returns the video queue settings. Audio jobs ride this queue.
func (q QueuesConfig) Video() QueueSettings {
	return QueueSettings{
		Concurrency: q.VideoConcurrency,
		MaxAttempts: q.VideoMaxAttempts,
		MinBackoff:  q.VideoMinBackoff,
		MaxBackoff:  q.VideoMaxBackoff,
	}
}

// Track returns the track queue settings.
func (q QueuesConfig) Track() QueueSettings {
	return QueueSettings{
		Concurrency: q.TrackConcurrency,
		MaxAttempts: q.TrackMaxAttempts,
		MinBackoff:  q.TrackMinBackoff,
		MaxBackoff:  q.TrackMaxBackoff,
	}
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"TRACE_CRON_INTERVAL" default:"1h"`
	PendingRetention      time.Duration `envconfig:"TRACE_CRON_PENDING_RETENTION" default:"168h"`
	StuckProcessingCutoff time.Duration `envconfig:"TRACE_CRON_STUCK_PROCESSING_CUTOFF" default:"6h"`
	LockTTL               time.Duration `envconfig:"TRACE_CRON_LOCK_TTL" default:"30m"`
}
