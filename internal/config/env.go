package config

import (
	"os"
	"time"
)

// Environment variable names for the optional integrations.
const (
	EnvS3Bucket     = "VIDEO_LEARNING_S3_BUCKET"
	EnvDynamoTable  = "VIDEO_LEARNING_DYNAMO_TABLE"
	EnvRedisAddr    = "VIDEO_LEARNING_REDIS_ADDR"
	EnvRedisQueue   = "VIDEO_LEARNING_REDIS_QUEUE"
	EnvRedisTimeout = "VIDEO_LEARNING_REDIS_TIMEOUT"
)

// DefaultRedisQueue is the list still images are pushed onto.
const DefaultRedisQueue = "video-learning:stills"

// Environment holds the integration settings. An empty field disables the
// corresponding integration.
type Environment struct {
	S3Bucket     string
	DynamoTable  string
	RedisAddr    string
	RedisQueue   string
	RedisTimeout time.Duration
}

// LoadEnvironment reads the integration settings from the process
// environment.
func LoadEnvironment() Environment {
	return Environment{
		S3Bucket:     os.Getenv(EnvS3Bucket),
		DynamoTable:  os.Getenv(EnvDynamoTable),
		RedisAddr:    os.Getenv(EnvRedisAddr),
		RedisQueue:   getEnv(EnvRedisQueue, DefaultRedisQueue),
		RedisTimeout: getDuration(EnvRedisTimeout, 30*time.Second),
	}
}

// UploadEnabled reports whether run artifacts go to S3.
func (e Environment) UploadEnabled() bool { return e.S3Bucket != "" }

// TableEnabled reports whether records go to DynamoDB.
func (e Environment) TableEnabled() bool { return e.DynamoTable != "" }

// QueueEnabled reports whether still images are read from Redis.
func (e Environment) QueueEnabled() bool { return e.RedisAddr != "" }

// AWSEnabled reports whether any AWS client is needed.
func (e Environment) AWSEnabled() bool { return e.UploadEnabled() || e.TableEnabled() }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
