package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPort            = "8080"
	DefaultConfigPath      = "azure_config.json"
	DefaultRequestTimeout  = 5 * time.Minute
	DefaultShutdownTimeout = 15 * time.Second
	DefaultComposeWorkers  = 4
	DefaultOutputFormat    = "html"

	EditorAgentKey      = "editor_agent"
	IllustratorAgentKey = "illustrator_agent"
)

// AppConfig 进程级配置，全部来自环境变量
type AppConfig struct {
	Port            string
	AgentConfigPath string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	DatabaseURL     string // 为空时不持久化
	LogLevel        string
	LogFile         string
	ComposeWorkers  int
	OutputFormat    string // text | json | html
	GinMode         string
}

// LoadDotEnv 加载 .env，文件不存在不算错误
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("failed to load .env")
	}
}

// LoadAppConfig 从环境变量读取进程配置
func LoadAppConfig() *AppConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		dbURL = getEnv("AZURE_SQL_CONNECTION_STRING", "")
	}

	return &AppConfig{
		Port:            getEnv("PORT", DefaultPort),
		AgentConfigPath: getEnv("KIDSBOOK_CONFIG", DefaultConfigPath),
		RequestTimeout:  getDuration("REQUEST_TIMEOUT", DefaultRequestTimeout),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
		DatabaseURL:     dbURL,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
		ComposeWorkers:  getInt("COMPOSE_WORKERS", DefaultComposeWorkers),
		OutputFormat:    strings.ToLower(getEnv("OUTPUT_FORMAT", DefaultOutputFormat)),
		GinMode:         getEnv("GIN_MODE", "release"),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logrus.WithField("key", key).Warnf("invalid duration %q, using %s", v, fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logrus.WithField("key", key).Warnf("invalid integer %q, using %d", v, fallback)
		return fallback
	}
	return n
}
