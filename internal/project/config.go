package project

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/raaihank/relay-scrubber/internal/datascrubbing"
	"github.com/raaihank/relay-scrubber/internal/pii"
)

// Config is the scrubbing related part of a project's configuration
type Config struct {
	PiiConfig             *pii.Config
	DataScrubbingSettings *datascrubbing.Config
}

// State is a project config entry as stored in the project cache
type State struct {
	ProjectID string `json:"projectId"`
	Disabled  bool   `json:"disabled"`
	Config    Config `json:"config"`
}

type rawConfig struct {
	PiiConfig             json.RawMessage `json:"piiConfig"`
	DataScrubbingSettings json.RawMessage `json:"datascrubbingSettings"`
}

// UnmarshalJSON decodes piiConfig either as an object or as a string
// holding the JSON document, and applies the defaults of missing
// datascrubbing flags.
func (c *Config) UnmarshalJSON(data []byte) error {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Config{}
	if doc := nonNull(raw.PiiConfig); doc != nil {
		if doc[0] == '"' {
			var s string
			if err := json.Unmarshal(doc, &s); err != nil {
				return fmt.Errorf("failed to decode piiConfig string: %w", err)
			}
			doc = nonNull([]byte(s))
		}
		if doc != nil {
			cfg, err := pii.ParseConfig(doc)
			if err != nil {
				return err
			}
			c.PiiConfig = cfg
		}
	}

	if doc := nonNull(raw.DataScrubbingSettings); doc != nil {
		settings, err := datascrubbing.ParseConfig(doc)
		if err != nil {
			return err
		}
		c.DataScrubbingSettings = &settings
	}
	return nil
}

// MarshalJSON encodes the config with absent parts as null
func (c Config) MarshalJSON() ([]byte, error) {
	out := struct {
		PiiConfig             *pii.Config           `json:"piiConfig"`
		DataScrubbingSettings *datascrubbing.Config `json:"datascrubbingSettings"`
	}{c.PiiConfig, c.DataScrubbingSettings}
	return json.MarshalWithOption(out, json.DisableHTMLEscape())
}

// PiiConfigs returns the configs to apply to an event in order: the
// explicit PII config first, then the one derived from the legacy
// datascrubbing settings.
func (c *Config) PiiConfigs(mode datascrubbing.Mode) []*pii.Config {
	if c == nil {
		return nil
	}
	var out []*pii.Config
	if c.PiiConfig != nil {
		out = append(out, c.PiiConfig)
	}
	if c.DataScrubbingSettings != nil {
		if legacy := datascrubbing.ToPiiConfig(*c.DataScrubbingSettings, mode); legacy != nil {
			out = append(out, legacy)
		}
	}
	return out
}

// ParseConfig decodes a project config document
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse project config: %w", err)
	}
	return cfg, nil
}

func nonNull(raw []byte) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return raw
}
