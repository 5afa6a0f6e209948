package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/interfaces"
	"github.com/ternarybob/tokenscope/internal/models"
	"gopkg.in/yaml.v3"
)

// RuleFile is the on-disk format for custom rules:
//
//	[[rules]]
//	name = "github-pat"
//	extract_from = "header"
//	key = "X-GitHub-Token"
type RuleFile struct {
	Rules []RuleFileEntry `toml:"rules" yaml:"rules"`
}

// RuleFileEntry is a custom rule as written by hand; Enabled defaults to true
type RuleFileEntry struct {
	Name        string `toml:"name" yaml:"name"`
	DisplayName string `toml:"display_name" yaml:"display_name"`
	URLPattern  string `toml:"url_pattern" yaml:"url_pattern"`
	Method      string `toml:"method" yaml:"method"`
	ExtractFrom string `toml:"extract_from" yaml:"extract_from"`
	Key         string `toml:"key" yaml:"key"`
	Pattern     string `toml:"pattern" yaml:"pattern"`
	Enabled     *bool  `toml:"enabled" yaml:"enabled"`
}

// ToCustomRule converts the file entry to the persisted model
func (e RuleFileEntry) ToCustomRule() models.CustomRule {
	enabled := true
	if e.Enabled != nil {
		enabled = *e.Enabled
	}
	return models.CustomRule{
		Name:        strings.TrimSpace(e.Name),
		DisplayName: e.DisplayName,
		URLPattern:  e.URLPattern,
		Method:      strings.ToUpper(e.Method),
		ExtractFrom: models.ExtractFrom(strings.ToLower(e.ExtractFrom)),
		Key:         e.Key,
		Pattern:     e.Pattern,
		Enabled:     enabled,
	}
}

// parseRuleFile decodes a TOML or YAML rule file by extension
func parseRuleFile(path string, data []byte) (*RuleFile, error) {
	var file RuleFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported rule file extension: %s", filepath.Ext(path))
	}
	return &file, nil
}

func isRuleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadRulesFromFiles upserts custom rules from every rule file in rulesDir into
// the persisted capture config. Invalid rules are logged and skipped.
func LoadRulesFromFiles(ctx context.Context, configStorage interfaces.CaptureConfigStorage, rulesDir string, logger arbor.ILogger) error {
	if rulesDir == "" {
		return nil
	}
	if _, err := os.Stat(rulesDir); os.IsNotExist(err) {
		logger.Debug().Str("dir", rulesDir).Msg("Rules directory does not exist, skipping")
		return nil
	}

	entries, err := os.ReadDir(rulesDir)
	if err != nil {
		return fmt.Errorf("failed to read rules directory: %w", err)
	}

	var rules []models.CustomRule
	for _, entry := range entries {
		if entry.IsDir() || !isRuleFile(entry.Name()) {
			continue
		}

		filePath := filepath.Join(rulesDir, entry.Name())
		data, err := os.ReadFile(filePath)
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read rule file")
			continue
		}

		file, err := parseRuleFile(filePath, data)
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to parse rule file")
			continue
		}

		for _, fileEntry := range file.Rules {
			rule := fileEntry.ToCustomRule()
			if err := rule.Validate(); err != nil {
				logger.Warn().Err(err).Str("file", entry.Name()).Str("rule", rule.Name).Msg("Skipping invalid custom rule")
				continue
			}
			rules = append(rules, rule)
		}
	}

	if len(rules) == 0 {
		logger.Debug().Str("dir", rulesDir).Msg("No custom rules loaded from files")
		return nil
	}

	_, err = configStorage.UpdateCaptureConfig(ctx, func(config *models.CaptureConfig) error {
		for _, rule := range rules {
			if idx := config.FindRule(rule.Name); idx >= 0 {
				config.CustomRules[idx] = rule
			} else {
				config.CustomRules = append(config.CustomRules, rule)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save custom rules: %w", err)
	}

	logger.Info().Int("count", len(rules)).Str("dir", rulesDir).Msg("Custom rules loaded from files")
	return nil
}
