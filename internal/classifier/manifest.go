package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/aevon-lab/analytics/internal/core/timestamp"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultManifest []byte

// Decoder turns one raw timestamp value into a UTC time.
type Decoder func(raw any) (time.Time, error)

// decoders maps manifest decoder names to implementations.
var decoders = map[string]Decoder{
	"components": timestamp.FromComponents,
	"epoch":      timestamp.FromEpoch,
	"iso":        timestamp.FromISO,
}

const maxLabelLength = 120

// Manifest is the on-disk rule list.
type Manifest struct {
	Rules []Rule `yaml:"rules"`
}

// Rule recognizes one upstream payload shape and describes how to normalize it.
type Rule struct {
	Name           string   `yaml:"name"`
	Requires       []string `yaml:"requires"`
	When           *When    `yaml:"when,omitempty"`
	TimestampField string   `yaml:"timestamp_field"`
	Decoder        string   `yaml:"decoder"`
	EventType      string   `yaml:"event_type"`
	Source         string   `yaml:"source"`

	decode Decoder
}

// When disambiguates rules with overlapping required keys on one optional field.
// Present=false matches when the field is absent or null; Present=true when it is non-null.
type When struct {
	Field   string `yaml:"field"`
	Present bool   `yaml:"present"`
}

// ParseManifest parses and validates a YAML rule manifest.
func ParseManifest(data []byte) ([]Rule, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse rule manifest: %w", err)
	}
	if len(m.Rules) == 0 {
		return nil, fmt.Errorf("rule manifest defines no rules")
	}

	seen := make(map[string]struct{}, len(m.Rules))
	for i := range m.Rules {
		r := &m.Rules[i]
		if err := r.compile(); err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, r.Name, err)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("rule %d: duplicate rule name %q", i, r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return m.Rules, nil
}

// LoadManifestFile reads and parses a rule manifest from disk.
func LoadManifestFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	rules, err := ParseManifest(defaultManifest)
	if err != nil {
		panic(fmt.Sprintf("embedded rule manifest is invalid: %v", err))
	}
	return rules
}

func (r *Rule) compile() error {
	switch {
	case r.Name == "":
		return fmt.Errorf("name is required")
	case len(r.Requires) == 0:
		return fmt.Errorf("requires must list at least one key")
	case r.TimestampField == "":
		return fmt.Errorf("timestamp_field is required")
	case r.EventType == "" || len(r.EventType) > maxLabelLength:
		return fmt.Errorf("event_type must be 1..%d characters", maxLabelLength)
	case r.Source == "" || len(r.Source) > maxLabelLength:
		return fmt.Errorf("source must be 1..%d characters", maxLabelLength)
	case r.When != nil && r.When.Field == "":
		return fmt.Errorf("when.field is required")
	}

	required := false
	for _, key := range r.Requires {
		if key == r.TimestampField {
			required = true
			break
		}
	}
	if !required {
		return fmt.Errorf("timestamp_field %q must be one of the required keys", r.TimestampField)
	}

	decode, ok := decoders[r.Decoder]
	if !ok {
		return fmt.Errorf("unknown decoder %q", r.Decoder)
	}
	r.decode = decode
	return nil
}

// Matches reports whether the payload has every required key and satisfies When.
func (r *Rule) Matches(payload map[string]interface{}) bool {
	for _, key := range r.Requires {
		if _, ok := payload[key]; !ok {
			return false
		}
	}
	if r.When != nil {
		present := payload[r.When.Field] != nil
		if present != r.When.Present {
			return false
		}
	}
	return true
}

// IsoField is the key under which the rendered timestamp is injected.
func (r *Rule) IsoField() string {
	return r.TimestampField + "Iso"
}
