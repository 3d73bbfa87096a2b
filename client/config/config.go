// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "EFMSG"

const (
	TransportWebsocket = "websocket"
	TransportRedis     = "redis"
)

type Config struct {
	Token     string          `mapstructure:"token"`
	UserID    int64           `mapstructure:"user_id"`
	API       APIConfig       `mapstructure:"api"`
	Hub       HubConfig       `mapstructure:"hub"`
	Transport TransportConfig `mapstructure:"transport"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Server    ServerConfig    `mapstructure:"server"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

type APIConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type HubConfig struct {
	URL  string `mapstructure:"url"`
	Path string `mapstructure:"path"`
}

type TransportConfig struct {
	Kind         string        `mapstructure:"kind"`
	RedisAddr    string        `mapstructure:"redis_addr"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// MessagingConfig holds the timing constants of the conversation view.
type MessagingConfig struct {
	TypingTimeout   time.Duration `mapstructure:"typing_timeout"`
	AutoReadDelay   time.Duration `mapstructure:"auto_read_delay"`
	ReplayDelay     time.Duration `mapstructure:"replay_delay"`
	DedupWindow     time.Duration `mapstructure:"dedup_window"`
	NotifyCooldown  time.Duration `mapstructure:"notify_cooldown"`
	PreviewLength   int           `mapstructure:"preview_length"`
	MaxPendingReads int           `mapstructure:"max_pending_reads"`
}

type ServerConfig struct {
	ListenAddr     string   `mapstructure:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggerConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DefaultMessaging returns the stock timings of the messaging view.
func DefaultMessaging() MessagingConfig {
	return MessagingConfig{
		TypingTimeout:   2 * time.Second,
		AutoReadDelay:   time.Second,
		ReplayDelay:     75 * time.Millisecond,
		DedupWindow:     time.Second,
		NotifyCooldown:  3 * time.Minute,
		PreviewLength:   50,
		MaxPendingReads: 256,
	}
}

func setDefaults(v *viper.Viper) {
	m := DefaultMessaging()
	v.SetDefault("token", "")
	v.SetDefault("user_id", 0)
	v.SetDefault("api.url", "http://localhost:5000/api/")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("hub.url", "ws://localhost:5000/hubs/")
	v.SetDefault("hub.path", "messagehub")
	v.SetDefault("transport.kind", TransportWebsocket)
	v.SetDefault("transport.redis_addr", "localhost:6379")
	v.SetDefault("transport.ping_interval", 15*time.Second)
	v.SetDefault("messaging.typing_timeout", m.TypingTimeout)
	v.SetDefault("messaging.auto_read_delay", m.AutoReadDelay)
	v.SetDefault("messaging.replay_delay", m.ReplayDelay)
	v.SetDefault("messaging.dedup_window", m.DedupWindow)
	v.SetDefault("messaging.notify_cooldown", m.NotifyCooldown)
	v.SetDefault("messaging.preview_length", m.PreviewLength)
	v.SetDefault("messaging.max_pending_reads", m.MaxPendingReads)
	v.SetDefault("server.listen_addr", "127.0.0.1:8090")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:4200"})
	v.SetDefault("logger.development", false)
	v.SetDefault("logger.level", "info")
}

// Load reads configuration from the optional YAML file at path and from
// EFMSG_* environment variables, which take precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, errors.New("config file not found")
			}
			return nil, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the settings needed to reach the server.
func (c *Config) Validate() error {
	if c.API.URL == "" {
		return &ValidationError{Message: "api url is not configured"}
	}
	if c.Token == "" {
		return &ValidationError{Message: "bearer token is not configured"}
	}
	switch c.Transport.Kind {
	case TransportWebsocket:
		if c.Hub.URL == "" {
			return &ValidationError{Message: "hub url is not configured"}
		}
	case TransportRedis:
		if c.Transport.RedisAddr == "" {
			return &ValidationError{Message: "redis address is not configured"}
		}
	default:
		return &ValidationError{Message: "unknown transport kind: " + c.Transport.Kind}
	}
	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
