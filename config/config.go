package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	DatabaseURL   string
	RedisURL      string
	RedisPassword string
	RedisDB       int
	JWTSecret     string

	// SOS 策略（可用环境变量覆盖）
	Sos SosConfig
}

// SosConfig 告警策略参数
type SosConfig struct {
	MinBuddies             int
	CooldownSeconds        int
	EscalateAfterMin       int
	EscalateMoreRecipients int
	DefaultRadiusKm        float64
	AutoSelectCap          int
}

func Load() *Config {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		JWTSecret:     os.Getenv("JWT_SECRET"),
	}

	cfg.Sos.MinBuddies = getEnvInt("MIN_BUDDIES_FOR_SOS", 1)
	cfg.Sos.CooldownSeconds = getEnvInt("COOLDOWN_SECONDS", 60)
	cfg.Sos.EscalateAfterMin = getEnvInt("ESCALATE_AFTER_MIN", 1)
	cfg.Sos.EscalateMoreRecipients = getEnvInt("ESCALATE_MORE_RECIPIENTS", 3)
	cfg.Sos.DefaultRadiusKm = getEnvFloat("DEFAULT_SOS_RADIUS_KM", 50)
	cfg.Sos.AutoSelectCap = getEnvInt("SOS_AUTO_SELECT_CAP", 5)

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
