package model

import (
	"os"

	"github.com/lsds/paramserver/srcs/go/syncer"
	"github.com/lsds/paramserver/srcs/go/updater"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var errInvalidConfig = errors.New("invalid model config")

type ParamConfig struct {
	Name           string  `yaml:"name"`
	Size           int     `yaml:"size"`
	LRScale        float32 `yaml:"lr_scale"`
	WDScale        float32 `yaml:"wd_scale"`
	SplitThreshold int     `yaml:"split_threshold"`
}

type SyncConfig struct {
	Strategy string `yaml:"strategy"`
	// Rate is the sample ratio of random syncs and alpha of elastic ones.
	Rate float32 `yaml:"rate"`
	// Frequency is the number of steps between two worker syncs.
	Frequency int `yaml:"frequency"`
}

// Config describes what every worker trains and how servers update it.
type Config struct {
	Params  []ParamConfig  `yaml:"params"`
	Updater updater.Config `yaml:"updater"`
	Sync    SyncConfig     `yaml:"sync"`
	Steps   int            `yaml:"steps"`
	Seed    uint64         `yaml:"seed"`
}

func LoadConfig(filename string) (*Config, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(bs)
}

func ParseConfig(bs []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(bs, &c); err != nil {
		return nil, errors.Wrap(err, "parse model config")
	}
	for i := range c.Params {
		p := &c.Params[i]
		if p.LRScale == 0 {
			p.LRScale = 1
		}
		if p.WDScale == 0 {
			p.WDScale = 1
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if len(c.Params) == 0 {
		return errors.Wrap(errInvalidConfig, "no params")
	}
	names := make(map[string]struct{})
	for _, p := range c.Params {
		if p.Size <= 0 {
			return errors.Wrapf(errInvalidConfig, "param %q has size %d", p.Name, p.Size)
		}
		if _, ok := names[p.Name]; ok {
			return errors.Wrapf(errInvalidConfig, "duplicated param %q", p.Name)
		}
		names[p.Name] = struct{}{}
	}
	if c.Steps < 0 {
		return errors.Wrapf(errInvalidConfig, "steps %d", c.Steps)
	}
	kind, err := syncer.ParseKind(c.Sync.Strategy)
	if err != nil {
		return err
	}
	if kind != syncer.Plain && (c.Sync.Rate <= 0 || c.Sync.Rate > 1) {
		return errors.Wrapf(errInvalidConfig, "%s sync rate %f", kind, c.Sync.Rate)
	}
	if _, err := updater.New(c.Updater); err != nil {
		return err
	}
	return nil
}

// SyncKind is the strategy named by the config, which Validate accepted.
func (c *Config) SyncKind() syncer.Kind {
	kind, _ := syncer.ParseKind(c.Sync.Strategy)
	return kind
}
