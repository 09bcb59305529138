package config

import (
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	GeminiAPIKey    string
	AnalystModel    string
	JudgeModel      string
	SubjectiveModel string

	MaxConcurrent     int
	NumRuns           int
	OutputDir         string
	DownloadDir       string
	MediaReadyTimeout time.Duration

	DatabaseURL string

	TelegramBotToken string
	TelegramChatID   int64
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing required env %s", k)
	}
	return v
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("env %s=%q is not a positive int, using %d", k, v, def)
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		log.Printf("env %s=%q is not a duration, using %v", k, v, def)
	}
	return def
}

func Load() *Config {
	chatID, _ := strconv.ParseInt(strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")), 10, 64)
	return &Config{
		Port: getEnv("PORT", "8000"),

		GeminiAPIKey:    mustEnv("GEMINI_API_KEY"),
		AnalystModel:    getEnv("ANALYST_MODEL", "gemini-2.5-pro"),
		JudgeModel:      getEnv("JUDGE_MODEL", "gemini-2.5-flash"),
		SubjectiveModel: getEnv("SUBJECTIVE_MODEL", "gemini-2.5-flash"),

		MaxConcurrent:     getEnvInt("MAX_CONCURRENT", 3),
		NumRuns:           getEnvInt("NUM_RUNS", 1),
		OutputDir:         getEnv("OUTPUT_DIR", "results"),
		DownloadDir:       getEnv("DOWNLOAD_DIR", "downloads"),
		MediaReadyTimeout: getEnvDuration("MEDIA_READY_TIMEOUT", 5*time.Minute),

		DatabaseURL: ResolveDSN(),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   chatID,
	}
}

// ResolveDSN prefers DATABASE_URL and otherwise assembles a DSN from the
// POSTGRES_* / PG* pieces. Empty means "no persistence configured".
func ResolveDSN() string {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v
	}
	host := strings.TrimSpace(os.Getenv("PGHOST"))
	if host == "" {
		return ""
	}
	user := getEnv("POSTGRES_USER", "auditor")
	pass := os.Getenv("POSTGRES_PASSWORD")
	port := getEnv("PGPORT", "5432")
	db := getEnv("POSTGRES_DB", "auditor")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
