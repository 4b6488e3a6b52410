package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultEnv               = "development"
	defaultLogLevel          = "info"
	defaultInvestEndpoint    = "invest-public-api.tinkoff.ru:443"
	defaultAppName           = "dip-trader"
	defaultClassCode         = "TQBR"
	defaultTimeframeSeconds  = 60
	defaultOrderBookDepth    = 50
	defaultThresholdTier1    = 0.006
	defaultThresholdTier2    = 0.015
	defaultThresholdTier3    = 0.015
	defaultHTTPHost          = "0.0.0.0"
	defaultHTTPPort          = 3000
	defaultEventsExchange    = "trading.events"
	defaultCandleBufferDepth = 16
	defaultRedisDB           = 0
	defaultCacheTTLSeconds   = 86400
)

// Config keeps the runtime configuration for the trader.
type Config struct {
	Env      string
	LogLevel string
	Invest   InvestConfig
	Trading  TradingConfig
	HTTP     HTTPConfig
	RabbitMQ RabbitMQConfig
	Catalog  CatalogConfig
	Redis    RedisConfig
	Cache    CacheConfig
}

// InvestConfig holds broker API credentials and the trading account.
type InvestConfig struct {
	Token         string
	Endpoint      string
	AppName       string
	SkipTLSVerify bool
	AccountID     string
	ClassCode     string
}

// TradingConfig holds the signal and execution parameters.
type TradingConfig struct {
	TimeframeSeconds   int
	CandleWaitingClose bool
	CandleBuffer       int
	OrderBookDepth     int32
	ThresholdTier1     float64
	ThresholdTier2     float64
	ThresholdTier3     float64
	SerializeEntries   bool
}

// HTTPConfig holds HTTP server related settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// RabbitMQConfig enables event publishing when URL is set.
type RabbitMQConfig struct {
	URL            string
	EventsExchange string
}

func (r RabbitMQConfig) Enabled() bool { return r.URL != "" }

// CatalogConfig points at an optional instrument_tiers table overriding the built-in lists.
type CatalogConfig struct {
	DSN string
}

// RedisConfig stores Redis connection parameters. An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// CacheConfig stores cache behavior.
type CacheConfig struct {
	TTLSeconds int
}

// Load reads .env (when present) and builds Config from environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds Config from environment variables only.
func FromEnv() (*Config, error) {
	token := getString("INVEST_TOKEN", "")
	if token == "" {
		return nil, errors.New("INVEST_TOKEN is required")
	}
	accountID := getString("INVEST_ACCOUNT_ID", "")
	if accountID == "" {
		return nil, errors.New("INVEST_ACCOUNT_ID is required")
	}

	skipVerify, err := getBool("INVEST_INSECURE_SKIP_VERIFY", false)
	if err != nil {
		return nil, err
	}
	timeframe, err := getInt("CANDLE_TIMEFRAME_SECONDS", defaultTimeframeSeconds)
	if err != nil {
		return nil, err
	}
	waitingClose, err := getBool("CANDLE_WAITING_CLOSE", true)
	if err != nil {
		return nil, err
	}
	buffer, err := getInt("CANDLE_BUFFER", defaultCandleBufferDepth)
	if err != nil {
		return nil, err
	}
	depth, err := getInt("ORDERBOOK_DEPTH", defaultOrderBookDepth)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		return nil, fmt.Errorf("ORDERBOOK_DEPTH must be positive, got %d", depth)
	}
	tier1, err := getFloat("THRESHOLD_TIER1", defaultThresholdTier1)
	if err != nil {
		return nil, err
	}
	tier2, err := getFloat("THRESHOLD_TIER2", defaultThresholdTier2)
	if err != nil {
		return nil, err
	}
	tier3, err := getFloat("THRESHOLD_TIER3", defaultThresholdTier3)
	if err != nil {
		return nil, err
	}
	serialize, err := getBool("SERIALIZE_ENTRIES", false)
	if err != nil {
		return nil, err
	}
	port, err := getInt("HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return nil, err
	}
	redisDB, err := getInt("REDIS_DB", defaultRedisDB)
	if err != nil {
		return nil, err
	}
	ttl, err := getInt("CACHE_TTL_SECONDS", defaultCacheTTLSeconds)
	if err != nil {
		return nil, err
	}

	return &Config{
		Env:      getString("APP_ENV", defaultEnv),
		LogLevel: getString("LOG_LEVEL", defaultLogLevel),
		Invest: InvestConfig{
			Token:         token,
			Endpoint:      getString("INVEST_ENDPOINT", defaultInvestEndpoint),
			AppName:       getString("INVEST_APP_NAME", defaultAppName),
			SkipTLSVerify: skipVerify,
			AccountID:     accountID,
			ClassCode:     getString("INVEST_CLASS_CODE", defaultClassCode),
		},
		Trading: TradingConfig{
			TimeframeSeconds:   timeframe,
			CandleWaitingClose: waitingClose,
			CandleBuffer:       buffer,
			OrderBookDepth:     int32(depth),
			ThresholdTier1:     tier1,
			ThresholdTier2:     tier2,
			ThresholdTier3:     tier3,
			SerializeEntries:   serialize,
		},
		HTTP: HTTPConfig{
			Host: getString("HTTP_HOST", defaultHTTPHost),
			Port: port,
		},
		RabbitMQ: RabbitMQConfig{
			URL:            getString("RABBITMQ_URL", ""),
			EventsExchange: getString("RABBITMQ_EVENTS_EXCHANGE", defaultEventsExchange),
		},
		Catalog: CatalogConfig{
			DSN: getString("CATALOG_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getString("REDIS_ADDR", ""),
			Password: getString("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Cache: CacheConfig{
			TTLSeconds: ttl,
		},
	}, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value := getString(key, "")
	if value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	value := getString(key, "")
	if value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to float: %w", key, value, err)
	}
	return parsed, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value := getString(key, "")
	if value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("convert %s value %q to bool: %w", key, value, err)
	}
	return parsed, nil
}
