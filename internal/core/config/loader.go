package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/medlingo/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	for i := range cfg.Dependencies {
		if cfg.Dependencies[i].Probe.Type == "" {
			cfg.Dependencies[i].Probe.Type = defaultProbeType(cfg.Dependencies[i].Name)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func defaultProbeType(dep domain.Dependency) string {
	switch dep {
	case domain.DependencyChannel:
		return ProbeChannel
	case domain.DependencySessionStore:
		return ProbeSQL
	case domain.DependencyCache:
		return ProbeRedis
	default:
		return ProbeHTTP
	}
}

// Validate checks dependency names, fallbacks and probe settings.
func (c *AppConfig) Validate() error {
	var errs []error
	seen := make(map[domain.Dependency]bool, len(c.Dependencies))

	for _, d := range c.Dependencies {
		if !d.Name.IsKnown() {
			errs = append(errs, fmt.Errorf("unknown dependency %q", d.Name))
			continue
		}
		if seen[d.Name] {
			errs = append(errs, fmt.Errorf("dependency %s configured twice", d.Name))
		}
		seen[d.Name] = true

		switch d.Probe.Type {
		case ProbeHTTP, ProbeGRPC:
			if d.Probe.URL == "" {
				errs = append(errs, fmt.Errorf("dependency %s: %s probe needs a url", d.Name, d.Probe.Type))
			}
		case ProbeSQL:
			if c.Database.URL == "" {
				errs = append(errs, fmt.Errorf("dependency %s: sql probe needs database.url", d.Name))
			}
		case ProbeRedis:
			if c.Redis.URL == "" {
				errs = append(errs, fmt.Errorf("dependency %s: redis probe needs redis.url", d.Name))
			}
		case ProbeChannel:
			if c.Channel.URL == "" {
				errs = append(errs, fmt.Errorf("dependency %s: channel probe needs channel.url", d.Name))
			}
		default:
			errs = append(errs, fmt.Errorf("dependency %s: unknown probe type %q", d.Name, d.Probe.Type))
		}
	}

	for _, d := range c.Dependencies {
		if d.Fallback == "" {
			continue
		}
		if d.Fallback == d.Name {
			errs = append(errs, fmt.Errorf("dependency %s cannot fall back to itself", d.Name))
		} else if !seen[d.Fallback] {
			errs = append(errs, fmt.Errorf("dependency %s: fallback %s is not configured", d.Name, d.Fallback))
		}
	}

	return errors.Join(errs...)
}

// Critical lists the dependencies flagged critical.
func (c *AppConfig) Critical() []domain.Dependency {
	var out []domain.Dependency
	for _, d := range c.Dependencies {
		if d.Critical {
			out = append(out, d.Name)
		}
	}
	return out
}

// Fallbacks maps each dependency to its configured fallback.
func (c *AppConfig) Fallbacks() map[domain.Dependency]domain.Dependency {
	out := make(map[domain.Dependency]domain.Dependency)
	for _, d := range c.Dependencies {
		if d.Fallback != "" {
			out[d.Name] = d.Fallback
		}
	}
	return out
}
