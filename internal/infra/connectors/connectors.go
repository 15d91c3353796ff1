// Package connectors implements the fetch stage for each connector type.
// A Source talks to one external system and returns raw records; everything
// downstream (findings, resolution) is source-agnostic.
package connectors

import (
	"context"
	"fmt"

	"github.com/opennhi/api/pkg/crypto"
	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/logger"
)

// Record is one raw record fetched from a source. Keys are source-native
// attribute names.
type Record map[string]any

// Source fetches raw records from an external system.
type Source interface {
	// Fetch retrieves all records. The context bounds the whole fetch; a
	// fetch error fails the job, but malformed individual records are
	// skipped and logged, not fatal.
	Fetch(ctx context.Context) ([]Record, error)
}

// Factory builds a Source for a connector, decrypting secret config values
// on the way.
type Factory struct {
	encryptor crypto.Encryptor
	logger    *logger.Logger
}

// NewFactory creates a connector source factory.
func NewFactory(encryptor crypto.Encryptor, log *logger.Logger) *Factory {
	return &Factory{
		encryptor: encryptor,
		logger:    log,
	}
}

// ForConnector returns the Source implementation for the connector's type.
func (f *Factory) ForConnector(c *connector.Connector) (Source, error) {
	cfg, err := f.decryptConfig(c)
	if err != nil {
		return nil, err
	}

	switch c.TypeCode() {
	case connector.TypeADLDAP:
		return newLDAPSource(cfg, f.logger), nil
	case connector.TypeADCSFile:
		return newFileSource(cfg, f.logger), nil
	case connector.TypeADCSRemote:
		return newRemoteSource(cfg, f.logger), nil
	default:
		return nil, fmt.Errorf("no source implementation for connector type %q", c.TypeCode())
	}
}

// decryptConfig returns the connector config with secret keys decrypted.
func (f *Factory) decryptConfig(c *connector.Connector) (map[string]any, error) {
	desc, ok := connector.LookupType(c.TypeCode())
	if !ok {
		return nil, fmt.Errorf("unknown connector type %q", c.TypeCode())
	}

	cfg := c.Config()
	for _, key := range desc.SecretConfig {
		enc, ok := cfg[key].(string)
		if !ok || enc == "" {
			continue
		}
		plain, err := f.encryptor.DecryptString(enc)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt config key %q: %w", key, err)
		}
		cfg[key] = plain
	}
	return cfg, nil
}

// configString reads a string config value with a default.
func configString(cfg map[string]any, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

// configInt reads an int config value with a default. JSON decoding stores
// numbers as float64.
func configInt(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

// configBool reads a bool config value with a default.
func configBool(cfg map[string]any, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}
