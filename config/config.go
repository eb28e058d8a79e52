package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// ClassConfig describes one game class in the queue composition. The queue
// holds Count slots of this class per team.
type ClassConfig struct {
	Name  string `mapstructure:"name"`
	Count int    `mapstructure:"count"`
}

// QueueConfig drives the slot table layout and the ready-up timers.
type QueueConfig struct {
	Classes           []ClassConfig `mapstructure:"classes"`
	TeamCount         int           `mapstructure:"teamCount"`
	ReadyUpTimeout    time.Duration `mapstructure:"readyUpTimeout"`
	ReadyStateTimeout time.Duration `mapstructure:"readyStateTimeout"`
}

// StaticServerConfig describes one statically registered game server.
type StaticServerConfig struct {
	Name         string `mapstructure:"name"`
	Address      string `mapstructure:"address"`
	Port         string `mapstructure:"port"`
	RconPassword string `mapstructure:"rconPassword"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PubsubConfig struct {
	ProjectID       string `mapstructure:"projectId"`
	Topic           string `mapstructure:"topic"`
	CredentialsFile string `mapstructure:"credentialsFile"`
}

type Config struct {
	WebsiteName     string               `mapstructure:"websiteName"`
	LogRelayAddress string               `mapstructure:"logRelayAddress"`
	LogRelayPort    string               `mapstructure:"logRelayPort"`
	MetricsPort     int                  `mapstructure:"metricsPort"`
	LogLevel        string               `mapstructure:"logLevel"`
	Queue           QueueConfig          `mapstructure:"queue"`
	Redis           RedisConfig          `mapstructure:"redis"`
	Pubsub          PubsubConfig         `mapstructure:"pubsub"`
	StaticServers   []StaticServerConfig `mapstructure:"staticServers"`
}

// Load reads config.yaml (when present) and applies PICKUP_* environment
// overrides on top of the defaults.
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("PICKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Err(err).Msg("config file unreadable; using defaults and environment")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to parse configuration")
	}

	if cfg.Queue.ReadyStateTimeout < cfg.Queue.ReadyUpTimeout {
		log.Warn().
			Dur("readyUpTimeout", cfg.Queue.ReadyUpTimeout).
			Dur("readyStateTimeout", cfg.Queue.ReadyStateTimeout).
			Msg("readyStateTimeout is shorter than readyUpTimeout; the queue will unready right after the ready-up deadline")
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("websiteName", "pickup.example.org")
	v.SetDefault("logRelayAddress", "127.0.0.1")
	v.SetDefault("logRelayPort", "9871")
	v.SetDefault("metricsPort", 8080)
	v.SetDefault("logLevel", "info")
	v.SetDefault("queue.teamCount", 2)
	v.SetDefault("queue.classes", []map[string]any{
		{"name": "scout", "count": 2},
		{"name": "soldier", "count": 2},
		{"name": "demoman", "count": 1},
		{"name": "medic", "count": 1},
	})
	v.SetDefault("queue.readyUpTimeout", 40*time.Second)
	v.SetDefault("queue.readyStateTimeout", 60*time.Second)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
}

func (c *Config) HTTPAddr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.MetricsPort))
}

// SlotCount is the total number of queue slots the configuration yields.
func (c *Config) SlotCount() int {
	total := 0
	for _, class := range c.Queue.Classes {
		total += class.Count * c.Queue.TeamCount
	}
	return total
}

// LogRelay is the address:port the game servers relay their logs to.
func (c *Config) LogRelay() string {
	return net.JoinHostPort(c.LogRelayAddress, c.LogRelayPort)
}

// Redacted returns a view safe for logging
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"websiteName":       c.WebsiteName,
		"logRelay":          c.LogRelay(),
		"metricsPort":       c.MetricsPort,
		"logLevel":          c.LogLevel,
		"queueSlots":        c.SlotCount(),
		"readyUpTimeout":    c.Queue.ReadyUpTimeout.String(),
		"readyStateTimeout": c.Queue.ReadyStateTimeout.String(),
		"redisConfigured":   c.Redis.Addr != "",
		"pubsubConfigured":  c.Pubsub.ProjectID != "" && c.Pubsub.Topic != "",
		"staticServers":     len(c.StaticServers),
	}
}
