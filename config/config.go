package config

import (
	"errors"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	optin "github.com/goliatone/go-optin"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the opt-in server.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Optin    OptinConfig    `yaml:"optin"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type OptinConfig struct {
	DefaultAcceptancePeriod string        `yaml:"default_acceptance_period"`
	TokenQueryKey           string        `yaml:"token_query_key"`
	VerifyRoute             string        `yaml:"verify_route"`
	SuccessRedirect         string        `yaml:"success_redirect"`
	FailureRedirect         string        `yaml:"failure_redirect"`
	Agents                  []AgentConfig `yaml:"agents"`
}

// AgentConfig registers an agent at startup.
type AgentConfig struct {
	Name             string `yaml:"name"`
	AcceptancePeriod string `yaml:"acceptance_period"`
}

var _ optin.Config = (*Config)(nil)

// Default returns the configuration used when nothing is provided.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: ":9100",
		},
		Database: DatabaseConfig{
			DSN: "file:optin.db?cache=shared",
		},
		Optin: OptinConfig{
			DefaultAcceptancePeriod: "24h",
			TokenQueryKey:           optin.TokenQueryKey,
			VerifyRoute:             "/optin",
		},
	}
}

// Load reads the YAML file at path (optional) and applies OPTIN_*
// environment overrides. A .env file is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse config file").
					WithMetadata(map[string]any{"path": path})
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "OPTIN_ADDR")
	setString(&c.Server.MetricsAddr, "OPTIN_METRICS_ADDR")
	setString(&c.Database.DSN, "OPTIN_DATABASE_DSN")
	setString(&c.Optin.DefaultAcceptancePeriod, "OPTIN_ACCEPTANCE_PERIOD")
	setString(&c.Optin.TokenQueryKey, "OPTIN_TOKEN_QUERY_KEY")
	setString(&c.Optin.VerifyRoute, "OPTIN_VERIFY_ROUTE")
	setString(&c.Optin.SuccessRedirect, "OPTIN_SUCCESS_REDIRECT")
	setString(&c.Optin.FailureRedirect, "OPTIN_FAILURE_REDIRECT")

	if v := os.Getenv("OPTIN_DEBUG"); v != "" {
		c.Debug = v == "true" || v == "1"
	}

	// OPTIN_AGENTS=newsletter:1h,signup
	if v := os.Getenv("OPTIN_AGENTS"); v != "" {
		c.Optin.Agents = nil
		for _, item := range strings.Split(v, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			name, period, _ := strings.Cut(item, ":")
			c.Optin.Agents = append(c.Optin.Agents, AgentConfig{
				Name:             strings.TrimSpace(name),
				AcceptancePeriod: strings.TrimSpace(period),
			})
		}
	}
}

// Validate will validate the configuration
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Addr, validation.Required),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(&c.Optin,
		validation.Field(&c.Optin.DefaultAcceptancePeriod, validation.By(durationRule)),
		validation.Field(&c.Optin.TokenQueryKey, validation.Required),
		validation.Field(&c.Optin.VerifyRoute, validation.Required),
	); err != nil {
		return err
	}

	for i := range c.Optin.Agents {
		agent := &c.Optin.Agents[i]
		if err := validation.ValidateStruct(agent,
			validation.Field(&agent.Name, validation.Required, validation.By(agentNameRule)),
			validation.Field(&agent.AcceptancePeriod, validation.By(durationRule)),
		); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) GetDefaultAcceptancePeriod() time.Duration {
	d, err := optin.ParseAcceptancePeriod(c.Optin.DefaultAcceptancePeriod)
	if err != nil {
		return optin.DefaultAcceptancePeriod
	}
	return d
}

func (c *Config) GetTokenQueryKey() string {
	return c.Optin.TokenQueryKey
}

func (c *Config) GetVerifyRoute() string {
	return c.Optin.VerifyRoute
}

func (c *Config) GetSuccessRedirect() string {
	return c.Optin.SuccessRedirect
}

func (c *Config) GetFailureRedirect() string {
	return c.Optin.FailureRedirect
}

// AgentOptions returns the registration options for a configured agent.
func (a AgentConfig) AgentOptions() []optin.AgentOption {
	if a.AcceptancePeriod == "" {
		return nil
	}
	d, err := optin.ParseAcceptancePeriod(a.AcceptancePeriod)
	if err != nil {
		return nil
	}
	return []optin.AgentOption{optin.WithAcceptancePeriod(d)}
}

func durationRule(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := optin.ParseAcceptancePeriod(s)
	return err
}

func agentNameRule(value any) error {
	s, _ := value.(string)
	if optin.NormalizeAgentName(s) == "" {
		return errors.New("must contain at least one of a-z, 0-9, _ or -")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
