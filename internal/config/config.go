package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/boinkor-net/gearbox-maintenance/internal/policy"
)

// Config holds all configuration (file + env overrides).
type Config struct {
	Server struct {
		MetricsAddr string `mapstructure:"metrics_addr"`
		LogLevel    string `mapstructure:"log_level"`
	} `mapstructure:"server"`

	Instances []Instance `mapstructure:"instances"`
}

// Instance is one seed-box endpoint plus its retention policies.
// Immutable for the process lifetime once validated.
type Instance struct {
	URL          string        `mapstructure:"url"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Policies     []Policy      `mapstructure:"policies"`

	// Rules is built from Policies during Load.
	Rules policy.RuleSet `mapstructure:"-"`
}

type Policy struct {
	Name       string   `mapstructure:"name"`
	DeleteData bool     `mapstructure:"delete_data"`
	Match      Match    `mapstructure:"match"`
	Clauses    []Clause `mapstructure:"clauses"`
}

type Match struct {
	Trackers     []string `mapstructure:"trackers"`
	MinFileCount *int     `mapstructure:"min_file_count"`
	MaxFileCount *int     `mapstructure:"max_file_count"`
}

type Clause struct {
	MinRatio   *float64       `mapstructure:"min_ratio"`
	MaxRatio   *float64       `mapstructure:"max_ratio"`
	MinSeeding *time.Duration `mapstructure:"min_seeding"`
	MaxSeeding *time.Duration `mapstructure:"max_seeding"`
}

// Load reads the config file at path, applies server env overrides
// (GEARBOX_SERVER_METRICS_ADDR, GEARBOX_SERVER_LOG_LEVEL) and validates
// everything. Any error here is fatal: no polling may start on a
// partially valid configuration.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	v.SetEnvPrefix("GEARBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees env values for explicitly bound keys.
	for _, key := range []string{"server.metrics_addr", "server.log_level"} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(c *Config) error {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if len(c.Instances) == 0 {
		return fmt.Errorf("no instances configured")
	}
	for i := range c.Instances {
		inst := &c.Instances[i]
		if inst.URL == "" {
			return fmt.Errorf("instance %d: url is required", i)
		}
		if _, err := url.Parse(inst.URL); err != nil {
			return fmt.Errorf("instance %d: parsing url: %w", i, err)
		}
		if inst.PollInterval <= 0 {
			inst.PollInterval = 10 * time.Minute
		}
		rules, err := buildRuleSet(inst.Policies)
		if err != nil {
			return fmt.Errorf("instance %s: %w", inst.URL, err)
		}
		inst.Rules = rules
	}
	return nil
}

func buildRuleSet(policies []Policy) (policy.RuleSet, error) {
	ps := make([]policy.Policy, len(policies))
	for i, pc := range policies {
		clauses := make([]policy.Clause, len(pc.Clauses))
		for j, cc := range pc.Clauses {
			clauses[j] = policy.Clause{
				MinRatio:   cc.MinRatio,
				MaxRatio:   cc.MaxRatio,
				MinSeeding: cc.MinSeeding,
				MaxSeeding: cc.MaxSeeding,
			}
		}
		ps[i] = policy.Policy{
			Name: pc.Name,
			Gate: policy.Gate{
				Trackers:     pc.Match.Trackers,
				MinFileCount: pc.Match.MinFileCount,
				MaxFileCount: pc.Match.MaxFileCount,
			},
			Clauses:    clauses,
			DeleteData: pc.DeleteData,
		}
	}
	return policy.NewRuleSet(ps)
}
