package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Tunables contains operational knobs loaded from YAML
type Tunables struct {
	Cache      CacheTunables      `yaml:"cache"`
	Buffer     BufferTunables     `yaml:"buffer"`
	Reconciler ReconcilerTunables `yaml:"reconciler"`
}

// CacheTunables contains config-cache settings
type CacheTunables struct {
	MappingTTLMinutes    int `yaml:"mapping_ttl_minutes"`
	ValidationTTLMinutes int `yaml:"validation_ttl_minutes"`
	MaxEntries           int `yaml:"max_entries"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// BufferTunables contains audit/metrics buffer settings
type BufferTunables struct {
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
	Capacity             int `yaml:"capacity"`
}

// ReconcilerTunables contains webhook reconciler settings
type ReconcilerTunables struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

// DefaultTunables returns the built-in tunables
func DefaultTunables() *Tunables {
	return &Tunables{
		Cache: CacheTunables{
			MappingTTLMinutes:    5,
			ValidationTTLMinutes: 60,
			MaxEntries:           10000,
			SweepIntervalSeconds: 60,
		},
		Buffer: BufferTunables{
			FlushIntervalSeconds: 30,
			Capacity:             100,
		},
		Reconciler: ReconcilerTunables{
			Enabled:         true,
			IntervalMinutes: 30,
		},
	}
}

// LoadTunables loads tunables from a YAML file. With an empty path a set
// of conventional locations is tried; a missing file falls back to the
// defaults without error.
func LoadTunables(configPath string) (*Tunables, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/bridge.yaml",
			"./configs/bridge.yaml",
			"/etc/trello-discord-bridge/bridge.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "bridge.yaml"))
		}
		if wd, err := os.Getwd(); err == nil {
			paths = append(paths, filepath.Join(wd, "configs", "bridge.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	var err error

	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err = os.ReadFile(p)
		if err == nil {
			loadedPath = p
			break
		}
	}

	tunables := DefaultTunables()
	if loadedPath == "" {
		return tunables, nil
	}

	if err := yaml.Unmarshal(data, tunables); err != nil {
		return DefaultTunables(), fmt.Errorf("failed to parse tunables from %s: %w", loadedPath, err)
	}

	fmt.Printf("[Conf] Loaded tunables from %s\n", loadedPath)
	return tunables, nil
}
