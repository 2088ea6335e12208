package config

import (
	"fmt"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database.max_conns (%d) must be >= min_conns (%d)",
			c.Database.MaxConns, c.Database.MinConns)
	}

	if err := c.Pipeline.validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	return nil
}

func (p *PipelineConfig) validate() error {
	if p.SubmitTimeout <= 0 {
		return fmt.Errorf("submit_timeout must be > 0 (got %v)", p.SubmitTimeout)
	}
	if p.ProjectionInterval <= 0 {
		return fmt.Errorf("projection_interval must be > 0 (got %v)", p.ProjectionInterval)
	}
	if p.ProjectionWaitTimeout < p.ProjectionInterval {
		return fmt.Errorf("projection_wait_timeout (%v) must be >= projection_interval (%v)",
			p.ProjectionWaitTimeout, p.ProjectionInterval)
	}
	return nil
}
