// Package config loads the simulation driver's YAML configuration: the
// per-tariff engine parameters from spec.md §6 (unitCapacity, maxHorizon,
// ring capacity) plus the ambient server settings the storage engine
// itself has no opinion about.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridsim/ev-tariff-storage/internal/storage"
)

// TariffConfig names one tariff's engine parameters.
type TariffConfig struct {
	Name         string  `yaml:"name"`
	UnitCapacity float64 `yaml:"unitCapacity"`
	MaxHorizon   int     `yaml:"maxHorizon"`
	RingCapacity int     `yaml:"ringCapacity"`
	InitialCount float64 `yaml:"initialPopulation"`
}

// Config is the simulation driver's top-level configuration.
type Config struct {
	ListenAddr string         `yaml:"listenAddr"`
	Tariffs    []TariffConfig `yaml:"tariffs"`
}

// ToEngineConfig converts a TariffConfig into the storage engine's own
// Config type.
func (t TariffConfig) ToEngineConfig() storage.Config {
	return storage.Config{
		UnitCapacity: t.UnitCapacity,
		MaxHorizon:   t.MaxHorizon,
		RingCapacity: t.RingCapacity,
	}
}

// Load reads and parses a YAML configuration file, then validates every
// tariff's parameters against spec.md §6's configuration contract
// (unitCapacity > 0, maxHorizon > 1 and strictly less than ring capacity).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	for i := range cfg.Tariffs {
		if cfg.Tariffs[i].RingCapacity <= 0 {
			cfg.Tariffs[i].RingCapacity = storage.DefaultRingCapacity
		}
		if err := validateTariff(cfg.Tariffs[i]); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func validateTariff(t TariffConfig) error {
	if t.Name == "" {
		return fmt.Errorf("config: tariff missing a name")
	}
	if t.UnitCapacity <= 0 {
		return fmt.Errorf("config: tariff %q: unitCapacity must be > 0, got %v", t.Name, t.UnitCapacity)
	}
	if t.MaxHorizon <= 1 {
		return fmt.Errorf("config: tariff %q: maxHorizon must be > 1, got %d", t.Name, t.MaxHorizon)
	}
	if t.MaxHorizon >= t.RingCapacity {
		// DistributeDemand writes a cell at every offset from 0 up to the
		// largest DemandElement.Horizon it is given and does not check that
		// horizon against maxHorizon. Keeping maxHorizon strictly below
		// ringCapacity keeps even a horizon equal to maxHorizon inside the
		// ring's clean window; at equality that write would panic.
		return fmt.Errorf("config: tariff %q: maxHorizon %d must be strictly less than ringCapacity %d", t.Name, t.MaxHorizon, t.RingCapacity)
	}
	return nil
}
