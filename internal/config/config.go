package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the chat node runtime parameters.
type Config struct {
	ListenAddress       string        `mapstructure:"listen_address"`
	LogLevel            string        `mapstructure:"log_level"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
	Admin               AdminConfig   `mapstructure:"admin"`
	Socket              SocketConfig  `mapstructure:"socket"`
	Keys                KeysConfig    `mapstructure:"keys"`
	Auth                AuthConfig    `mapstructure:"auth"`
	Mongo               MongoConfig   `mapstructure:"mongo"`
	FCM                 FCMConfig     `mapstructure:"fcm"`
}

// AdminConfig describes the metrics/health endpoint. Empty address disables it.
type AdminConfig struct {
	Address           string        `mapstructure:"address"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
}

// SocketConfig tunes the per-connection websocket pumps.
type SocketConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
}

// KeysConfig controls one-time socket key issuance.
type KeysConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// AuthConfig describes bearer-token verification for the REST surface.
// The JWT secret itself is never placed in config files; only the name of the
// environment variable holding it is.
type AuthConfig struct {
	SecretEnv string `mapstructure:"secret_env"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

// MongoConfig points at the message/user store.
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// FCMConfig enables push notifications. Empty credentials file disables them.
type FCMConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

const (
	defaultListenAddress       = "0.0.0.0:8080"
	defaultLogLevel            = "info"
	defaultShutdownGracePeriod = 10 * time.Second
	defaultAdminAddress        = ""
	defaultReadHeaderTimeout   = 5 * time.Second
	defaultSendBuffer          = 32
	defaultReadLimit           = int64(64 << 10)
	defaultPongWait            = 60 * time.Second
	defaultPingInterval        = 50 * time.Second
	defaultWriteWait           = 10 * time.Second
	defaultKeyTTL              = 10 * time.Minute
	defaultKeySweepInterval    = time.Minute
	defaultSecretEnv           = "CHATD_JWT_SECRET"
	defaultIssuer              = "clicktochat"
	defaultAudience            = "clicktochat-users"
	defaultMongoURI            = "mongodb://localhost:27017"
	defaultMongoDatabase       = "clicktochat"
	defaultMongoTimeout        = 10 * time.Second
)

// Load reads configuration from the provided file path (if any) and the
// environment. Environment variables are prefixed with CHATD_ and override
// file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHATD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("listen_address", defaultListenAddress)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("shutdown_grace_period", defaultShutdownGracePeriod.String())
	v.SetDefault("admin.address", defaultAdminAddress)
	v.SetDefault("admin.read_header_timeout", defaultReadHeaderTimeout.String())
	v.SetDefault("socket.send_buffer", defaultSendBuffer)
	v.SetDefault("socket.read_limit", defaultReadLimit)
	v.SetDefault("socket.pong_wait", defaultPongWait.String())
	v.SetDefault("socket.ping_interval", defaultPingInterval.String())
	v.SetDefault("socket.write_wait", defaultWriteWait.String())
	v.SetDefault("keys.ttl", defaultKeyTTL.String())
	v.SetDefault("keys.sweep_interval", defaultKeySweepInterval.String())
	v.SetDefault("auth.secret_env", defaultSecretEnv)
	v.SetDefault("auth.issuer", defaultIssuer)
	v.SetDefault("auth.audience", defaultAudience)
	v.SetDefault("mongo.uri", defaultMongoURI)
	v.SetDefault("mongo.database", defaultMongoDatabase)
	v.SetDefault("mongo.connect_timeout", defaultMongoTimeout.String())
	v.SetDefault("fcm.credentials_file", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Viper leaves durations as strings; normalize them here.
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"shutdown_grace_period", &cfg.ShutdownGracePeriod},
		{"admin.read_header_timeout", &cfg.Admin.ReadHeaderTimeout},
		{"socket.pong_wait", &cfg.Socket.PongWait},
		{"socket.ping_interval", &cfg.Socket.PingInterval},
		{"socket.write_wait", &cfg.Socket.WriteWait},
		{"keys.ttl", &cfg.Keys.TTL},
		{"keys.sweep_interval", &cfg.Keys.SweepInterval},
		{"mongo.connect_timeout", &cfg.Mongo.ConnectTimeout},
	}
	for _, d := range durations {
		dur, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = dur
	}

	if cfg.Socket.SendBuffer <= 0 {
		cfg.Socket.SendBuffer = defaultSendBuffer
	}
	if cfg.Socket.ReadLimit <= 0 {
		cfg.Socket.ReadLimit = defaultReadLimit
	}
	if cfg.Auth.SecretEnv == "" {
		cfg.Auth.SecretEnv = defaultSecretEnv
	}

	return cfg, nil
}

// Secret fetches the JWT signing secret from the configured environment
// variable.
func (c Config) Secret() (string, error) {
	env := c.Auth.SecretEnv
	if env == "" {
		env = defaultSecretEnv
	}
	val := strings.TrimSpace(getenv(env))
	if val == "" {
		return "", fmt.Errorf("jwt secret env %s is empty", env)
	}
	return val, nil
}

// split out for testing.
var getenv = os.Getenv
