package config

import (
	"github.com/cfoust/dodgeball/pkg/ball"
	"github.com/cfoust/dodgeball/pkg/lifecycle"
	"github.com/cfoust/dodgeball/pkg/stats"
	"github.com/cfoust/dodgeball/pkg/transport/redisbus"
	"github.com/cfoust/dodgeball/pkg/transport/relay"
)

type RelayConfig struct {
	// Where the relay server listens.
	Listen string `yaml:"listen"`
	// Where participants connect to.
	URL  string `yaml:"url"`
	Room string `yaml:"room"`

	relay.Settings `yaml:",inline"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Config struct {
	ball.Settings `yaml:",inline"`

	Lifecycle lifecycle.Config  `yaml:"lifecycle"`
	Relay     RelayConfig       `yaml:"relay"`
	Redis     redisbus.Settings `yaml:"redis"`
	Journal   JournalConfig     `yaml:"journal"`
	Stats     stats.Table       `yaml:"stats"`
}
