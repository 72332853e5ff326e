package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env               string
	HTTPPort          string
	HRAPIBaseURL      string
	HRAPIServiceToken string
	CameraSnapshotURL string
	CameraStaticFile  string
	CameraTimeout     time.Duration
	AcquireTimeout    time.Duration
	RedisAddr         string
	CacheTTL          time.Duration
	JWTIssuer         string
	JWTSigningKey     string
	QueueBackend      string
	RateLimitPerMin   int
}

// Load returns application config populated from environment variables
// with sensible defaults. A local .env file is honored when present.
func Load() App {
	_ = godotenv.Load()

	return App{
		Env:               getEnv("APP_ENV", "dev"),
		HTTPPort:          getEnv("HTTP_PORT", "8082"),
		HRAPIBaseURL:      getEnv("HR_API_BASE_URL", "http://localhost:8080/api"),
		HRAPIServiceToken: getEnv("HR_API_SERVICE_TOKEN", ""),
		CameraSnapshotURL: getEnv("CAMERA_SNAPSHOT_URL", ""),
		CameraStaticFile:  getEnv("CAMERA_STATIC_FILE", ""),
		CameraTimeout:     durationEnv("CAMERA_TIMEOUT", 10*time.Second),
		AcquireTimeout:    durationEnv("CAMERA_ACQUIRE_TIMEOUT", 10*time.Second),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		CacheTTL:          durationEnv("CACHE_TTL", 5*time.Minute),
		JWTIssuer:         getEnv("JWT_ISSUER", "hr-backend"),
		JWTSigningKey:     getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		QueueBackend:      getEnv("QUEUE_BACKEND", "redis"),
		RateLimitPerMin:   intEnv("RATE_LIMIT_PER_MIN", 120),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}
