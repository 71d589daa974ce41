// Package config loads and validates the hub's JSON configuration file into
// a types.ResolvedConfig the supervisor can build actors from. Validation
// is delegated to types.Config.Resolve, which is the single source of
// truth for defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fleetwatch/hub/pkg/types"
)

// Load reads the JSON config file at path, decodes it and resolves every
// field default and cross-reference (unique server ids, unique service
// names, storage backend selection). Any error returned here is fatal at
// startup.
func Load(path string) (types.ResolvedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ResolvedConfig{}, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw types.Config
	if err := json.Unmarshal(data, &raw); err != nil {
		return types.ResolvedConfig{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	resolved, err := raw.Resolve()
	if err != nil {
		return types.ResolvedConfig{}, fmt.Errorf("validating config file %s: %w", path, err)
	}
	return resolved, nil
}
