// Package classifier recognizes which upstream producer emitted a raw payload
// and turns it into a canonical record command.
package classifier

import (
	"fmt"
	"sync/atomic"
	"time"

	v1 "github.com/aevon-lab/analytics/internal/api/v1"
	"github.com/aevon-lab/analytics/internal/core/timestamp"
)

// Outcome is a recognized and normalized payload.
type Outcome struct {
	Rule          string
	Command       v1.RecordEventCommand
	OccurredAtISO string
}

// Classifier evaluates an ordered rule set. The active set can be swapped at
// runtime; each Classify call sees one consistent set.
type Classifier struct {
	rules atomic.Pointer[[]Rule]
}

// New returns a Classifier over the given compiled rules.
func New(rules []Rule) *Classifier {
	c := &Classifier{}
	c.Replace(rules)
	return c
}

// NewDefault returns a Classifier over the built-in rule set.
func NewDefault() *Classifier {
	return New(DefaultRules())
}

// NewFromFile returns a Classifier over the rules in a manifest file.
func NewFromFile(path string) (*Classifier, error) {
	rules, err := LoadManifestFile(path)
	if err != nil {
		return nil, err
	}
	return New(rules), nil
}

// Replace atomically swaps the active rule set.
func (c *Classifier) Replace(rules []Rule) {
	owned := make([]Rule, len(rules))
	copy(owned, rules)
	c.rules.Store(&owned)
}

// Rules returns the active rule set in priority order.
func (c *Classifier) Rules() []Rule {
	return *c.rules.Load()
}

// Classify runs the first matching rule against the payload.
//
// ok is false when no rule matches; that is an expected outcome, not an error.
// A recognized payload whose timestamp cannot be decoded returns ok=true and an
// error wrapping timestamp.ErrMalformedTimestamp.
func (c *Classifier) Classify(payload map[string]interface{}) (Outcome, bool, error) {
	for _, rule := range c.Rules() {
		if !rule.Matches(payload) {
			continue
		}
		outcome, err := normalize(rule, payload)
		if err != nil {
			return Outcome{Rule: rule.Name}, true, fmt.Errorf("rule %s: field %s: %w", rule.Name, rule.TimestampField, err)
		}
		return outcome, true, nil
	}
	return Outcome{}, false, nil
}

// MatchingRules lists every rule whose recognizer accepts the payload, in order.
func (c *Classifier) MatchingRules(payload map[string]interface{}) []string {
	var names []string
	for _, rule := range c.Rules() {
		if rule.Matches(payload) {
			names = append(names, rule.Name)
		}
	}
	return names
}

func normalize(rule Rule, payload map[string]interface{}) (Outcome, error) {
	occurredAt, err := rule.decode(payload[rule.TimestampField])
	if err != nil {
		return Outcome{}, err
	}
	iso := timestamp.FormatISO(occurredAt)

	normalized := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		normalized[k] = v
	}
	normalized[rule.IsoField()] = iso

	ts := occurredAt.UTC().Truncate(time.Microsecond)
	return Outcome{
		Rule: rule.Name,
		Command: v1.RecordEventCommand{
			EventType:  rule.EventType,
			Source:     rule.Source,
			OccurredAt: &ts,
			Payload:    normalized,
		},
		OccurredAtISO: iso,
	}, nil
}
