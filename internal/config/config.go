package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port               string `envconfig:"PORT" default:"8080"`
	Environment        string `envconfig:"ENV" default:"development"`
	DBConnectionString string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret          string `envconfig:"JWT_SECRET" required:"true"`

	// Redis backs the sliding-window rate limiter.
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Blob storage for materialized generation results.
	S3URL           string `envconfig:"S3_URL" required:"true"`
	S3Bucket        string `envconfig:"S3_BUCKET" required:"true"`
	S3Region        string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey     string `envconfig:"S3_ACCESS_KEY" required:"true"`
	S3SecretKey     string `envconfig:"S3_SECRET_KEY" required:"true"`
	S3PublicBaseURL string `envconfig:"S3_PUBLIC_BASE_URL" default:""`

	// External prediction provider. When the token env var is empty the
	// token is resolved from Secret Manager at startup.
	PredictionBaseURL         string `envconfig:"PREDICTION_BASE_URL" required:"true"`
	PredictionAPIToken        string `envconfig:"PREDICTION_API_TOKEN" default:""`
	PredictionTokenSecretName string `envconfig:"PREDICTION_TOKEN_SECRET_NAME" default:""`

	// GCP settings for Pub/Sub lifecycle events and Secret Manager.
	GCPProjectID       string `envconfig:"GCP_PROJECT_ID" default:""`
	JobEventsTopic     string `envconfig:"JOB_EVENTS_TOPIC" default:"generation-job-events"`
	PubSubEmulatorHost string `envconfig:"PUBSUB_EMULATOR_HOST" default:""`

	// Cloud Scheduler OIDC settings for the internal sweep endpoint.
	SchedulerAudienceURL         string `envconfig:"SCHEDULER_AUDIENCE_URL" default:""`
	SchedulerServiceAccountEmail string `envconfig:"SCHEDULER_SERVICE_ACCOUNT_EMAIL" default:""`

	// Rate-limit policy per operation class: window seconds, max requests
	// per window and the estimated credit cost checked at admission.
	ImageGenWindowSec  int   `envconfig:"IMAGE_GEN_WINDOW_SEC" default:"60"`
	ImageGenMaxCount   int   `envconfig:"IMAGE_GEN_MAX_COUNT" default:"10"`
	ImageGenCost       int64 `envconfig:"IMAGE_GEN_COST" default:"1"`
	VideoGenWindowSec  int   `envconfig:"VIDEO_GEN_WINDOW_SEC" default:"300"`
	VideoGenMaxCount   int   `envconfig:"VIDEO_GEN_MAX_COUNT" default:"3"`
	VideoGenCost       int64 `envconfig:"VIDEO_GEN_COST" default:"10"`
	TrainingWindowSec  int   `envconfig:"TRAINING_WINDOW_SEC" default:"3600"`
	TrainingMaxCount   int   `envconfig:"TRAINING_MAX_COUNT" default:"2"`
	TrainingCost       int64 `envconfig:"TRAINING_COST" default:"50"`
	ChatWindowSec      int   `envconfig:"CHAT_WINDOW_SEC" default:"60"`
	ChatMaxCount       int   `envconfig:"CHAT_MAX_COUNT" default:"30"`
	ChatCost           int64 `envconfig:"CHAT_COST" default:"0"`
	BatchFeedWindowSec int   `envconfig:"BATCH_FEED_WINDOW_SEC" default:"3600"`
	BatchFeedMaxCount  int   `envconfig:"BATCH_FEED_MAX_COUNT" default:"4"`
	BatchFeedCost      int64 `envconfig:"BATCH_FEED_COST" default:"8"`

	// Rotation template pool sizes.
	OutfitPoolSize    int `envconfig:"OUTFIT_POOL_SIZE" default:"20"`
	LocationPoolSize  int `envconfig:"LOCATION_POOL_SIZE" default:"15"`
	AccessoryPoolSize int `envconfig:"ACCESSORY_POOL_SIZE" default:"10"`

	// Jobs pending longer than this are failed by the sweep endpoint.
	JobStaleAfterMin int `envconfig:"JOB_STALE_AFTER_MIN" default:"60"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
