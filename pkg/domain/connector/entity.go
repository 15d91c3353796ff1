// Package connector defines configured discovery sources and their type
// registry.
package connector

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
)

// RunStatus is the outcome of a connector's most recent job.
type RunStatus string

// Run statuses mirror terminal job states, plus "never" before the first run.
const (
	RunStatusNever     RunStatus = "never"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Connector is a configured discovery source inside one enclave.
type Connector struct {
	id            shared.ID
	enclaveID     shared.ID
	typeCode      TypeCode
	name          string
	config        map[string]any
	cronExpr      string
	enabled       bool
	lastRunAt     *time.Time
	lastRunStatus RunStatus
	createdAt     time.Time
	updatedAt     time.Time
}

// New creates a Connector after validating its type and config against the
// type registry.
func New(enclaveID shared.ID, typeCode TypeCode, name string, config map[string]any, cronExpr string) (*Connector, error) {
	if enclaveID.IsZero() {
		return nil, fmt.Errorf("%w: enclave id is required", shared.ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	desc, ok := LookupType(typeCode)
	if !ok {
		return nil, fmt.Errorf("%w: unknown connector type %q", shared.ErrValidation, typeCode)
	}
	if config == nil {
		config = make(map[string]any)
	}
	if err := desc.ValidateConfig(config); err != nil {
		return nil, err
	}
	if err := validateCron(cronExpr); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Connector{
		id:            shared.NewID(),
		enclaveID:     enclaveID,
		typeCode:      typeCode,
		name:          name,
		config:        config,
		cronExpr:      cronExpr,
		enabled:       true,
		lastRunStatus: RunStatusNever,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// Reconstitute recreates a Connector from persistence.
func Reconstitute(
	id, enclaveID shared.ID,
	typeCode TypeCode,
	name string,
	config map[string]any,
	cronExpr string,
	enabled bool,
	lastRunAt *time.Time,
	lastRunStatus RunStatus,
	createdAt, updatedAt time.Time,
) *Connector {
	if config == nil {
		config = make(map[string]any)
	}
	if lastRunStatus == "" {
		lastRunStatus = RunStatusNever
	}
	return &Connector{
		id:            id,
		enclaveID:     enclaveID,
		typeCode:      typeCode,
		name:          name,
		config:        config,
		cronExpr:      cronExpr,
		enabled:       enabled,
		lastRunAt:     lastRunAt,
		lastRunStatus: lastRunStatus,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

// ID returns the connector ID.
func (c *Connector) ID() shared.ID { return c.id }

// EnclaveID returns the owning enclave ID.
func (c *Connector) EnclaveID() shared.ID { return c.enclaveID }

// TypeCode returns the connector type code.
func (c *Connector) TypeCode() TypeCode { return c.typeCode }

// Name returns the connector name.
func (c *Connector) Name() string { return c.name }

// Config returns a copy of the connector config.
func (c *Connector) Config() map[string]any {
	out := make(map[string]any, len(c.config))
	for k, v := range c.config {
		out[k] = v
	}
	return out
}

// ConfigString returns a string config value, or def when absent.
func (c *Connector) ConfigString(key, def string) string {
	if v, ok := c.config[key]; ok && v != nil {
		if s, isStr := v.(string); isStr {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return def
}

// ConfigInt returns an integer config value, or def when absent.
func (c *Connector) ConfigInt(key string, def int) int {
	switch v := c.config[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// ConfigBool returns a boolean config value, or def when absent.
func (c *Connector) ConfigBool(key string, def bool) bool {
	if v, ok := c.config[key].(bool); ok {
		return v
	}
	return def
}

// CronExpression returns the schedule, empty for on-demand-only connectors.
func (c *Connector) CronExpression() string { return c.cronExpr }

// Enabled reports whether the connector may be scheduled.
func (c *Connector) Enabled() bool { return c.enabled }

// LastRunAt returns when the connector last ran.
func (c *Connector) LastRunAt() *time.Time { return c.lastRunAt }

// LastRunStatus returns the outcome of the most recent run.
func (c *Connector) LastRunStatus() RunStatus { return c.lastRunStatus }

// CreatedAt returns the creation timestamp.
func (c *Connector) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the last update timestamp.
func (c *Connector) UpdatedAt() time.Time { return c.updatedAt }

// SourceType returns the source-type family this connector produces.
func (c *Connector) SourceType() (sourcetype.SourceType, bool) {
	desc, found := LookupType(c.typeCode)
	if !found {
		return "", false
	}
	return desc.Source, true
}

// Rename updates the connector name.
func (c *Connector) Rename(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	c.name = name
	c.updatedAt = time.Now().UTC()
	return nil
}

// UpdateConfig replaces the config after re-validating it.
func (c *Connector) UpdateConfig(config map[string]any) error {
	desc, ok := LookupType(c.typeCode)
	if !ok {
		return fmt.Errorf("%w: unknown connector type %q", shared.ErrValidation, c.typeCode)
	}
	if config == nil {
		config = make(map[string]any)
	}
	if err := desc.ValidateConfig(config); err != nil {
		return err
	}
	c.config = config
	c.updatedAt = time.Now().UTC()
	return nil
}

// UpdateSchedule replaces the cron expression.
func (c *Connector) UpdateSchedule(cronExpr string) error {
	if err := validateCron(cronExpr); err != nil {
		return err
	}
	c.cronExpr = cronExpr
	c.updatedAt = time.Now().UTC()
	return nil
}

// Enable marks the connector schedulable.
func (c *Connector) Enable() {
	c.enabled = true
	c.updatedAt = time.Now().UTC()
}

// Disable stops future scheduling. Does not affect an in-flight job.
func (c *Connector) Disable() {
	c.enabled = false
	c.updatedAt = time.Now().UTC()
}

// RecordRun records the outcome of a finished job.
func (c *Connector) RecordRun(at time.Time, status RunStatus) {
	c.lastRunAt = &at
	c.lastRunStatus = status
	c.updatedAt = time.Now().UTC()
}

func validateCron(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("%w: invalid cron expression %q: %v", shared.ErrValidation, expr, err)
	}
	return nil
}
