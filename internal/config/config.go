package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
)

type Config struct {
	// Environment: "development" or "production"
	Env string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Redis (event bus, retry queue, topology cache)
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// Ops API
	APIPort        int
	JWTSecret      string
	JWTExpireHours int

	// Workflow
	// OwnerServiceID identifies the one workflow-driver service this
	// process acts for; every service instance and whitelist entry is
	// scoped to it.
	OwnerServiceID              uint
	CreateSubscriberOnDiscovery bool
	SweepIntervalMinutes        int
	ReconcileMaxRetry           int
}

// generateSecureSecret generates a cryptographically secure random secret
func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return hex.EncodeToString([]byte(os.Getenv("HOSTNAME") + string(rune(length))))
	}
	return hex.EncodeToString(bytes)
}

func Load() *Config {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateSecureSecret(32)
		log.Println("WARNING: JWT_SECRET not set - generated random secret. Ops API tokens will not survive restarts.")
	}

	dbPassword := getEnv("DB_PASSWORD", "")
	if dbPassword == "" {
		log.Println("WARNING: DB_PASSWORD not set - this is insecure for production!")
		dbPassword = "changeme"
	}

	redisPassword := getEnv("REDIS_PASSWORD", "")
	if redisPassword == "" {
		log.Println("WARNING: REDIS_PASSWORD not set - Redis is not secured!")
	}

	return &Config{
		Env: getEnv("ENV", "production"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "workflow"),
		DBPassword: dbPassword,
		DBName:     getEnv("DB_NAME", "workflow"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: redisPassword,

		APIPort:        getEnvInt("API_PORT", 8080),
		JWTSecret:      jwtSecret,
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 168),

		OwnerServiceID:              uint(getEnvInt("OWNER_SERVICE_ID", 1)),
		CreateSubscriberOnDiscovery: getEnvBool("CREATE_SUBSCRIBER_ON_DISCOVERY", false),
		SweepIntervalMinutes:        getEnvInt("SWEEP_INTERVAL_MINUTES", 10),
		ReconcileMaxRetry:           getEnvInt("RECONCILE_MAX_RETRY", 10),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
