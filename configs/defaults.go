package configs

import (
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SetDefaults registers every key of the default configuration with v so
// environment variables and flags can override nested values
func SetDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to encode default configuration: %w", err)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to decode default configuration: %w", err)
	}

	for key, value := range flatten("", tree) {
		v.SetDefault(key, value)
	}
	return nil
}

func flatten(prefix string, tree map[string]any) map[string]any {
	out := make(map[string]any)
	for k, value := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := value.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = value
	}
	return out
}

// Effective returns the configuration as YAML
func Effective(config *Config) ([]byte, error) {
	return yaml.Marshal(config)
}
