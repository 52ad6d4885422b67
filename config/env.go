package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort  string
	GRPCPort  string
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit string
	Log       LogConfig
	Ledger    LedgerConfig
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	JWTSecret string
	JWTTTL    time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type LedgerConfig struct {
	// CapPolicy is "partial" or "reject".
	CapPolicy     string
	TxMaxRetries  int
	EventsEnabled bool
	// RemoteAddr points the gateway at a ledger gRPC service. Empty means
	// purchases are recorded in-process.
	RemoteAddr    string
}

var defaults = map[string]interface{}{
	"HTTP_PORT":            "8080",
	"GRPC_PORT":            "50053",
	"POS_DSN":              "",
	"DB_MAX_OPEN_CONNS":    20,
	"DB_MAX_IDLE_CONNS":    5,
	"DB_CONN_MAX_LIFETIME": time.Hour,
	"REDIS_HOST":           "localhost",
	"REDIS_PORT":           "6379",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"REDIS_CLUSTER_ADDRS":  "",
	"JWT_SECRET":           "",
	"JWT_TTL":              12 * time.Hour,
	"RATE_LIMIT":           "60-M",
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "text",
	"PROMOTION_CAP_POLICY": "partial",
	"TX_MAX_RETRIES":       3,
	"EVENTS_ENABLED":       true,
	"LEDGER_GRPC_ADDR":     "",
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	return Config{
		HTTPPort: v.GetString("HTTP_PORT"),
		GRPCPort: v.GetString("GRPC_PORT"),
		DB: DBConfig{
			DSN:             v.GetString("POS_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Redis: RedisConfig{
			Host:         v.GetString("REDIS_HOST"),
			Port:         v.GetString("REDIS_PORT"),
			Password:     v.GetString("REDIS_PASSWORD"),
			DB:           v.GetInt("REDIS_DB"),
			ClusterAddrs: splitList(v.GetString("REDIS_CLUSTER_ADDRS")),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			JWTTTL:    v.GetDuration("JWT_TTL"),
		},
		RateLimit: v.GetString("RATE_LIMIT"),
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Ledger: LedgerConfig{
			CapPolicy:     strings.ToLower(v.GetString("PROMOTION_CAP_POLICY")),
			TxMaxRetries:  v.GetInt("TX_MAX_RETRIES"),
			EventsEnabled: v.GetBool("EVENTS_ENABLED"),
			RemoteAddr:    v.GetString("LEDGER_GRPC_ADDR"),
		},
	}
}

// Validate reports settings a process cannot start with.
func (c Config) Validate() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("POS_DSN is required")
	}
	switch c.Ledger.CapPolicy {
	case "partial", "reject":
	default:
		return fmt.Errorf("PROMOTION_CAP_POLICY must be partial or reject, got %q", c.Ledger.CapPolicy)
	}
	if c.Ledger.TxMaxRetries < 0 {
		return fmt.Errorf("TX_MAX_RETRIES must not be negative")
	}
	return nil
}

// ValidateGateway also requires the settings only the HTTP gateway uses.
func (c Config) ValidateGateway() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
