package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	LogLevel  string
	Portal    PortalConfig
	Tariff    TariffConfig
	Fetch     FetchConfig
	LLM       LLMConfig
	Agent     AgentConfig
	Community CommunityConfig
	Runs      RunsConfig
	Kafka     KafkaConfig
	InfluxDB  InfluxDBConfig
	Processor ProcessorConfig
	Metrics   MetricsConfig
}

// PortalConfig holds the smart meter portal endpoints and default credentials
type PortalConfig struct {
	AuthURL     string
	TokenURL    string
	APIURL      string
	SeriesURL   string
	AppConfig   string
	RedirectURL string
	ClientID    string
	Email       string
	Password    string
	Timeout     time.Duration
}

// TariffConfig holds the public tariff catalog endpoints
type TariffConfig struct {
	BaseURL  string
	PageURL  string
	TopN     int
	Timeout  time.Duration
	GrossVAT float64
}

// FetchConfig holds the retry policy of the resilient fetcher
type FetchConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// LLMConfig selects the chat model provider
type LLMConfig struct {
	Provider    string
	Model       string
	VisionModel string
	APIKey      string
	APIURL      string
	MaxTokens   int
	Timeout     time.Duration
}

// AgentConfig holds the tool loop limits
type AgentConfig struct {
	MaxTurns int
}

// CommunityConfig points at an optional energy community catalog file
type CommunityConfig struct {
	CatalogPath string
}

// RunsConfig holds background run settings
type RunsConfig struct {
	ListenerTimeout time.Duration
	BufferSize      int
}

// KafkaConfig holds Kafka-related configuration
type KafkaConfig struct {
	Brokers       []string
	RequestTopic  string
	ProgressTopic string
	GroupID       string
	ConsumerCount int
}

// InfluxDBConfig holds InfluxDB-related configuration
type InfluxDBConfig struct {
	Enabled bool
	URL     string
	Org     string
	Token   string
	Bucket  string
}

// ProcessorConfig holds processor-related configuration
type ProcessorConfig struct {
	WorkerCount        int
	QueueSize          int
	EnableAggregations bool
	FlushInterval      time.Duration
}

// MetricsConfig holds the prometheus listener address
type MetricsConfig struct {
	Addr string
}

// LoadEnv loads local .env files into the process environment, if present.
// It returns the files that were loaded.
func LoadEnv() []string {
	loaded := make([]string, 0, 2)
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			continue
		}
		loaded = append(loaded, file)
	}
	return loaded
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Portal: PortalConfig{
			AuthURL:     getEnv("PORTAL_AUTH_URL", "https://log.wien/auth/realms/logwien/protocol/openid-connect/auth"),
			TokenURL:    getEnv("PORTAL_TOKEN_URL", "https://log.wien/auth/realms/logwien/protocol/openid-connect/token"),
			APIURL:      getEnv("PORTAL_API_URL", "https://api.wstw.at/gateway/WN_SMART_METER_PORTAL_API_B2C/1.0"),
			SeriesURL:   getEnv("PORTAL_SERIES_URL", "https://service.wienernetze.at/sm/api"),
			AppConfig:   getEnv("PORTAL_APP_CONFIG_URL", "https://smartmeter-web.wienernetze.at/assets/app-config.json"),
			RedirectURL: getEnv("PORTAL_REDIRECT_URL", "https://smartmeter-web.wienernetze.at/"),
			ClientID:    getEnv("PORTAL_CLIENT_ID", "wn-smartmeter"),
			Email:       getEnv("PORTAL_EMAIL", ""),
			Password:    getEnv("PORTAL_PASSWORD", ""),
			Timeout:     getEnvDuration("PORTAL_TIMEOUT", 30*time.Second),
		},
		Tariff: TariffConfig{
			BaseURL:  getEnv("TARIFF_BASE_URL", "https://www.e-control.at/o/rc-public-rest"),
			PageURL:  getEnv("TARIFF_PAGE_URL", "https://www.e-control.at/tarifkalkulator"),
			TopN:     getEnvInt("TARIFF_TOP_N", 5),
			Timeout:  getEnvDuration("TARIFF_TIMEOUT", 30*time.Second),
			GrossVAT: getEnvFloat("TARIFF_GROSS_FACTOR", 1.2),
		},
		Fetch: FetchConfig{
			MaxAttempts: getEnvInt("FETCH_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvDuration("FETCH_BASE_DELAY", 2*time.Second),
			MaxDelay:    getEnvDuration("FETCH_MAX_DELAY", 8*time.Second),
		},
		LLM: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", "ollama"),
			Model:       getEnv("LLM_MODEL", "qwen3:14b"),
			VisionModel: getEnv("LLM_VISION_MODEL", "qwen2.5vl:7b"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			APIURL:      getEnv("LLM_API_URL", "http://localhost:11434"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 4096),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 300*time.Second),
		},
		Agent: AgentConfig{
			MaxTurns: getEnvInt("AGENT_MAX_TURNS", 15),
		},
		Community: CommunityConfig{
			CatalogPath: getEnv("COMMUNITY_CATALOG", ""),
		},
		Runs: RunsConfig{
			ListenerTimeout: getEnvDuration("RUN_LISTENER_TIMEOUT", 5*time.Minute),
			BufferSize:      getEnvInt("RUN_BUFFER_SIZE", 16),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			RequestTopic:  getEnv("KAFKA_REQUEST_TOPIC", "energy-analysis-requests"),
			ProgressTopic: getEnv("KAFKA_PROGRESS_TOPIC", "energy-analysis-progress"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "energy-cost-analyzer"),
			ConsumerCount: getEnvInt("KAFKA_CONSUMER_COUNT", 1),
		},
		InfluxDB: InfluxDBConfig{
			Enabled: getEnvBool("INFLUXDB_ENABLED", false),
			URL:     getEnv("INFLUXDB_URL", "http://localhost:8086"),
			Org:     getEnv("INFLUXDB_ORG", "household"),
			Token:   getEnv("INFLUX_TOKEN", ""),
			Bucket:  getEnv("INFLUXDB_BUCKET", "energy-analyses"),
		},
		Processor: ProcessorConfig{
			WorkerCount:        getEnvInt("PROCESSOR_WORKER_COUNT", 2),
			QueueSize:          getEnvInt("PROCESSOR_QUEUE_SIZE", 100),
			EnableAggregations: getEnvBool("PROCESSOR_ENABLE_AGGREGATIONS", true),
			FlushInterval:      getEnvDuration("PROCESSOR_FLUSH_INTERVAL", 10*time.Second),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ":9102"),
		},
	}, nil
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
