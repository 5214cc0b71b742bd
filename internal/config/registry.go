package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TokenProgramRegistry names the two SPL token program ids the auto-
// discovery filter recognizes, plus the Token-2022 extension types it
// blocklists for the safety check. It is operator-editable YAML rather
// than a Go constant so a new extension can be blocklisted without a
// rebuild.
type TokenProgramRegistry struct {
	ClassicTokenProgramID  string `yaml:"classic_token_program_id"`
	ExtendedTokenProgramID string `yaml:"extended_token_program_id"`
	BlockedExtensionTypes  []int  `yaml:"blocked_extension_types"`
}

// DefaultBlockedExtensionTypes blocks: transfer fee, confidential
// transfer, interest bearing, permanent delegate, transfer hook,
// confidential transfer fee.
var DefaultBlockedExtensionTypes = []int{1, 4, 10, 12, 14, 16}

// LoadTokenProgramRegistry reads a YAML file with the shape of
// TokenProgramRegistry. Missing optional fields fall back to the builtin
// defaults above.
func LoadTokenProgramRegistry(path string) (*TokenProgramRegistry, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read token program registry: %w", err)
	}

	var reg TokenProgramRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse token program registry: %w", err)
	}

	if reg.ClassicTokenProgramID == "" {
		return nil, fmt.Errorf("classic_token_program_id is required")
	}
	if reg.ExtendedTokenProgramID == "" {
		return nil, fmt.Errorf("extended_token_program_id is required")
	}
	if len(reg.BlockedExtensionTypes) == 0 {
		reg.BlockedExtensionTypes = append([]int(nil), DefaultBlockedExtensionTypes...)
	}

	return &reg, nil
}
