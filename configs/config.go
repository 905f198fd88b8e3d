package configs

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort       string
	RedisURL         string
	AdminSecret      string
	AdminSecretHash  string
	JWTSecret        string
	JWTTTL           time.Duration
	NumberPartitions int
	CacheTTL         time.Duration
	RateLimitWindow  time.Duration
	RateLimitMax     int
	LoaderBatchSize  int
	SourceDBURLs     []string
	SourceMySQLDSN   string
	SourceMySQLTable string
	EnableWebSocket  bool
}

// SourceDatabase describes one upstream feed the loader can ingest.
type SourceDatabase struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"-"`
	Enabled bool   `json:"enabled"`
}

var AppConfig *Config

func LoadConfig() error {

	godotenv.Load()

	AppConfig = &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		RedisURL:         getEnv("REDIS_URL", "localhost:6379"),
		AdminSecret:      getEnv("ADMIN_SECRET", ""),
		AdminSecretHash:  getEnv("ADMIN_SECRET_HASH", ""),
		JWTSecret:        getEnv("JWT_SECRET", "change-me-in-production"),
		JWTTTL:           parseDuration(getEnv("JWT_TTL", "24h"), 24*time.Hour),
		NumberPartitions: parseInt(getEnv("NUMBER_PARTITIONS", "1000"), 1000),
		CacheTTL:         parseDuration(getEnv("CACHE_TTL", "1h"), time.Hour),
		RateLimitWindow:  parseDuration(getEnv("RATE_LIMIT_WINDOW", "60s"), time.Minute),
		RateLimitMax:     parseInt(getEnv("MAX_REQUESTS_PER_MINUTE", "60"), 60),
		LoaderBatchSize:  parseInt(getEnv("LOADER_BATCH_SIZE", "1000"), 1000),
		SourceDBURLs:     splitList(getEnv("SOURCE_DB_URLS", "")),
		SourceMySQLDSN:   getEnv("SOURCE_MYSQL_DSN", ""),
		SourceMySQLTable: getEnv("SOURCE_MYSQL_TABLE", "subscriber_records"),
		EnableWebSocket:  parseBool(getEnv("ENABLE_WEBSOCKET", "true")),
	}

	return nil
}

// SourceDatabases enumerates the configured CSV feeds as db1..dbN, the
// identifiers the loader and status endpoints report.
func SourceDatabases() []SourceDatabase {
	dbs := make([]SourceDatabase, 0, len(AppConfig.SourceDBURLs))
	for i, url := range AppConfig.SourceDBURLs {
		dbs = append(dbs, SourceDatabase{
			ID:      "db" + strconv.Itoa(i+1),
			Name:    "Database " + strconv.Itoa(i+1),
			URL:     url,
			Enabled: url != "",
		})
	}
	return dbs
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil || i <= 0 {
		return defaultValue
	}
	return i
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func init() {
	if err := LoadConfig(); err != nil {
		log.Fatal("Failed to load config:", err)
	}
}
