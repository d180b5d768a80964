package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"firestige.xyz/chainproto/internal/model"
)

// ParseChainConfig parses a chain configuration from JSON.
func ParseChainConfig(data []byte) (model.ChainConfig, error) {
	var cc model.ChainConfig
	if err := json.Unmarshal(data, &cc); err != nil {
		return nil, fmt.Errorf("failed to parse chain config: %w", err)
	}
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	return cc, nil
}

// ParseChainConfigAuto detects format (JSON/YAML) from filename and
// parses the chain configuration accordingly.
func ParseChainConfigAuto(data []byte, filename string) (model.ChainConfig, error) {
	var cc model.ChainConfig

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML chain config: %w", err)
		}
	case ".json", "":
		if err := json.Unmarshal(data, &cc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON chain config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cc); err != nil {
			if err2 := yaml.Unmarshal(data, &cc); err2 != nil {
				return nil, fmt.Errorf("failed to parse chain config (tried JSON and YAML): JSON: %v; YAML: %v", err, err2)
			}
		}
	}

	if err := cc.Validate(); err != nil {
		return nil, err
	}
	return cc, nil
}

// LoadChainConfigFile reads and parses a single chain config file from disk.
func LoadChainConfigFile(path string) (model.ChainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain config %s: %w", path, err)
	}
	return ParseChainConfigAuto(data, path)
}

// LoadChainConfigDir reads every .json/.yaml/.yml file directly under dir
// and parses each as a chain configuration, skipping subdirectories.
func LoadChainConfigDir(dir string) ([]model.ChainConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read chains dir %s: %w", dir, err)
	}

	var chains []model.ChainConfig
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		cc, err := LoadChainConfigFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		chains = append(chains, cc)
	}
	return chains, nil
}
