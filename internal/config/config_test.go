package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:      "postgres://localhost:5432/clinprecision",
			MaxConns: 25,
			MinConns: 5,
		},
		Pipeline: PipelineConfig{
			SubmitTimeout:         10 * time.Second,
			ProjectionInterval:    200 * time.Millisecond,
			ProjectionWaitTimeout: 15 * time.Second,
		},
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_PoolBounds(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Database.MaxConns = 2
	cfg.Database.MinConns = 10

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "max_conns") {
		t.Fatalf("want max_conns error, got %v", err)
	}
}

func TestValidate_Pipeline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			"zero submit timeout",
			func(c *Config) { c.Pipeline.SubmitTimeout = 0 },
			"submit_timeout",
		},
		{
			"zero projection interval",
			func(c *Config) { c.Pipeline.ProjectionInterval = 0 },
			"projection_interval",
		},
		{
			"wait shorter than interval",
			func(c *Config) { c.Pipeline.ProjectionWaitTimeout = 100 * time.Millisecond },
			"projection_wait_timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("want error containing %q, got %v", tt.want, err)
			}
		})
	}
}
