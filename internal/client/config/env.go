package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// parseEnv overlays cfg with the GEOPRESENCE_* variables that are set.
// Unset variables keep the current value.
func parseEnv(cfg *Config) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}
