package operations

import (
	"sync"
	"time"
)

// Config tunes pipeline execution.
type Config struct {
	mu sync.RWMutex

	// StepTimeouts bounds individual step runs; unlisted steps get
	// DefaultStepTimeout.
	StepTimeouts map[string]time.Duration

	// RetryConfig controls re-attempts of retryable step failures.
	RetryConfig RetryConfig

	// ContinueOnError keeps the pipeline running after a step fails
	// instead of skipping the dependents and aborting.
	ContinueOnError bool
}

// NewConfig returns the default pipeline configuration.
func NewConfig() *Config {
	return &Config{
		StepTimeouts: map[string]time.Duration{
			StepIDFetch:   DefaultFetchTimeout,
			StepIDFactors: DefaultFactorsTimeout,
			StepIDStudy:   DefaultStudyTimeout,
			StepIDReport:  DefaultReportTimeout,
		},
		RetryConfig: NewRetryConfig(),
	}
}

// StepTimeout returns the timeout for a step ID.
func (c *Config) StepTimeout(stepID string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if timeout, ok := c.StepTimeouts[stepID]; ok {
		return timeout
	}
	return DefaultStepTimeout
}

// SetStepTimeout overrides the timeout for a step ID.
func (c *Config) SetStepTimeout(stepID string, timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StepTimeouts == nil {
		c.StepTimeouts = make(map[string]time.Duration)
	}
	c.StepTimeouts[stepID] = timeout
}

// ConfigBuilder assembles a Config fluently.
type ConfigBuilder struct {
	config *Config
}

// NewConfigBuilder starts from the default configuration.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: NewConfig()}
}

// WithStepTimeout overrides one step's timeout.
func (b *ConfigBuilder) WithStepTimeout(stepID string, timeout time.Duration) *ConfigBuilder {
	b.config.SetStepTimeout(stepID, timeout)
	return b
}

// WithRetryConfig replaces the retry policy.
func (b *ConfigBuilder) WithRetryConfig(rc RetryConfig) *ConfigBuilder {
	b.config.RetryConfig = rc
	return b
}

// WithContinueOnError keeps executing after step failures.
func (b *ConfigBuilder) WithContinueOnError(continueOnError bool) *ConfigBuilder {
	b.config.ContinueOnError = continueOnError
	return b
}

// Build returns the assembled configuration.
func (b *ConfigBuilder) Build() *Config {
	return b.config
}
