package config

import (
	"errors"
	"github.com/rs/zerolog"
	"github.com/securerx/go-securerx/node"
	"github.com/securerx/go-securerx/utils"
	"github.com/spf13/viper"
	"github.com/ztrue/tracerr"
	"strings"
	"time"
)

var (
	// ErrorInvalidConfig is returned when the configuration file or environment cannot be read
	ErrorInvalidConfig = utils.NewRxError("CONFIG_INVALID", "cannot read configuration")
	// ErrorInvalidLogLevel is returned when LOG_LEVEL is not a zerolog level name
	ErrorInvalidLogLevel = utils.NewRxError("CONFIG_INVALID_LOG_LEVEL", "unknown log level")
)

// Config is read from the environment, and optionally from a securerx.yaml file. The environment wins.
type Config struct {
	NodeId       string        `mapstructure:"node_id"`
	ApiAddr      string        `mapstructure:"api_addr"`
	Peers        []string      `mapstructure:"peers"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	SyncTimeout  time.Duration `mapstructure:"sync_timeout"`
	LogLevel     string        `mapstructure:"log_level"`
	LogNoColor   bool          `mapstructure:"log_no_color"`
	// DataDir is accepted for compatibility with older deployments. Ledgers are not persisted.
	DataDir string `mapstructure:"data_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node_id", "node1")
	v.SetDefault("api_addr", "0.0.0.0:8080")
	v.SetDefault("peers", []string{})
	v.SetDefault("sync_interval", 5*time.Second)
	v.SetDefault("sync_timeout", 5*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_no_color", false)
	v.SetDefault("data_dir", "")
}

// Load reads the configuration. When path is not empty, a securerx.yaml file is looked up in it; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.AddConfigPath(path)
		v.SetConfigName("securerx")
		v.SetConfigType("yaml")
		err := v.ReadInConfig()
		var notFound viper.ConfigFileNotFoundError
		if err != nil && !errors.As(err, &notFound) {
			return nil, tracerr.Wrap(ErrorInvalidConfig.AddDetails(err.Error()))
		}
	}

	var config Config
	err := v.Unmarshal(&config)
	if err != nil {
		return nil, tracerr.Wrap(ErrorInvalidConfig.AddDetails(err.Error()))
	}
	config.Peers = parsePeers(config.Peers)
	return &config, nil
}

// parsePeers splits comma-separated entries, as PEERS=node2:8080,node3:8080 comes in as a single string.
func parsePeers(raw []string) []string {
	peers := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, p := range strings.Split(entry, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				peers = append(peers, p)
			}
		}
	}
	return peers
}

// NodeOptions maps the configuration to node.InitializeOptions.
func (c *Config) NodeOptions() (*node.InitializeOptions, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return nil, tracerr.Wrap(ErrorInvalidLogLevel.AddDetails(c.LogLevel))
	}
	return &node.InitializeOptions{
		NodeId:       c.NodeId,
		ApiAddr:      c.ApiAddr,
		Peers:        c.Peers,
		SyncInterval: c.SyncInterval,
		SyncTimeout:  c.SyncTimeout,
		LogLevel:     level,
		LogNoColor:   c.LogNoColor,
	}, nil
}
