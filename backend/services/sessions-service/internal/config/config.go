package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "evroaming/backend/libs/config"
)

// Config defines sessions service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"SESSIONS_HTTP_PORT"`
	} `yaml:"http"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"SESSIONS_JWT_SECRET"`
		// Accounts are "login:bcrypt-hash" pairs accepted as basic credentials.
		Accounts []string `yaml:"accounts" env:"SESSIONS_ACCOUNTS"`
	} `yaml:"auth"`
	Database struct {
		DSN string `yaml:"dsn" env:"SESSIONS_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string        `yaml:"addr" env:"SESSIONS_REDIS_ADDR"`
		Password string        `yaml:"password" env:"SESSIONS_REDIS_PASSWORD"`
		DB       int           `yaml:"db" env:"SESSIONS_REDIS_DB"`
		TTL      time.Duration `yaml:"ttl" env:"SESSIONS_REDIS_TTL"`
	} `yaml:"redis"`
	Audit struct {
		File string `yaml:"file" env:"SESSIONS_AUDIT_FILE"`
	} `yaml:"audit"`
	Directory struct {
		File string `yaml:"file" env:"SESSIONS_DIRECTORY_FILE"`
	} `yaml:"directory"`
	Station struct {
		BaseURL            string        `yaml:"baseUrl" env:"SESSIONS_STATION_BASE_URL"`
		Login              string        `yaml:"login" env:"SESSIONS_STATION_LOGIN"`
		Password           string        `yaml:"password" env:"SESSIONS_STATION_PASSWORD"`
		AuthListID         string        `yaml:"authListId" env:"SESSIONS_STATION_AUTH_LIST"`
		SystemID           string        `yaml:"systemId" env:"SESSIONS_SYSTEM_ID"`
		ReserveTimeout     time.Duration `yaml:"reserveTimeout" env:"SESSIONS_STATION_RESERVE_TIMEOUT"`
		CancelTimeout      time.Duration `yaml:"cancelTimeout" env:"SESSIONS_STATION_CANCEL_TIMEOUT"`
		RemoteStartTimeout time.Duration `yaml:"remoteStartTimeout" env:"SESSIONS_STATION_START_TIMEOUT"`
		RemoteStopTimeout  time.Duration `yaml:"remoteStopTimeout" env:"SESSIONS_STATION_STOP_TIMEOUT"`
		StatusTimeout      time.Duration `yaml:"statusTimeout" env:"SESSIONS_STATION_STATUS_TIMEOUT"`
		StatusInterval     time.Duration `yaml:"statusInterval" env:"SESSIONS_STATION_STATUS_INTERVAL"`
		WhitelistTimeout   time.Duration `yaml:"whitelistTimeout" env:"SESSIONS_STATION_WHITELIST_TIMEOUT"`
	} `yaml:"station"`
	Kafka struct {
		Brokers []string `yaml:"brokers" env:"SESSIONS_KAFKA_BROKERS"`
		Topic   string   `yaml:"topic" env:"SESSIONS_KAFKA_CDR_TOPIC"`
	} `yaml:"kafka"`
	MQTT struct {
		Broker      string `yaml:"broker" env:"SESSIONS_MQTT_BROKER"`
		ClientID    string `yaml:"clientId" env:"SESSIONS_MQTT_CLIENT_ID"`
		Username    string `yaml:"username" env:"SESSIONS_MQTT_USERNAME"`
		Password    string `yaml:"password" env:"SESSIONS_MQTT_PASSWORD"`
		TopicPrefix string `yaml:"topicPrefix" env:"SESSIONS_MQTT_TOPIC_PREFIX"`
	} `yaml:"mqtt"`
	CDR struct {
		SigningSecret string `yaml:"signingSecret" env:"SESSIONS_CDR_SIGNING_SECRET"`
		KeyID         string `yaml:"keyId" env:"SESSIONS_CDR_KEY_ID"`
	} `yaml:"cdr"`
	Reservations struct {
		ExpiryInterval time.Duration `yaml:"expiryInterval" env:"SESSIONS_RESERVATION_EXPIRY_INTERVAL"`
	} `yaml:"reservations"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = "8082"
	cfg.Redis.TTL = 24 * time.Hour
	cfg.Station.SystemID = "sessions-service"
	cfg.Kafka.Topic = "charge-detail-records"
	cfg.MQTT.ClientID = "sessions-service"
	cfg.MQTT.TopicPrefix = "evroaming"
	cfg.CDR.KeyID = "sessions-service"
	cfg.Reservations.ExpiryInterval = 30 * time.Second
	return cfg
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Station.BaseURL) == "" {
		return errors.New("config: station base url required")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" && len(c.Auth.Accounts) == 0 {
		return errors.New("config: jwt secret or service accounts required")
	}
	if _, err := c.ServiceAccounts(); err != nil {
		return err
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8082"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// ActiveSessionTTL returns how long a live session stays cached in redis.
func (c *Config) ActiveSessionTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return 24 * time.Hour
	}
	return c.Redis.TTL
}

// ServiceAccounts parses Auth.Accounts into login → bcrypt hash.
func (c *Config) ServiceAccounts() (map[string]string, error) {
	accounts := make(map[string]string, len(c.Auth.Accounts))
	for _, entry := range c.Auth.Accounts {
		login, hash, ok := strings.Cut(entry, ":")
		login, hash = strings.TrimSpace(login), strings.TrimSpace(hash)
		if !ok || login == "" || hash == "" {
			return nil, fmt.Errorf("config: malformed service account %q", entry)
		}
		accounts[login] = hash
	}
	return accounts, nil
}
