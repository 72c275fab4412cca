package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aevon-lab/analytics/internal/classifier"
	"github.com/aevon-lab/analytics/internal/ingestion"
)

// ClassifyCmd runs one payload through the classifier and prints the result.
type ClassifyCmd struct {
	File  string `arg:"" type:"existingfile" help:"JSON payload file"`
	Rules string `help:"Rule manifest to use instead of the built-in rules" type:"existingfile"`
}

type classifyResult struct {
	Rule          string      `json:"rule"`
	OccurredAtISO string      `json:"occurredAtIso"`
	Command       interface{} `json:"command"`
}

func (c *ClassifyCmd) Run(_ *CLI) error {
	return c.run(os.Stdout)
}

func (c *ClassifyCmd) run(out io.Writer) error {
	cls := classifier.NewDefault()
	if c.Rules != "" {
		var err error
		if cls, err = classifier.NewFromFile(c.Rules); err != nil {
			return err
		}
	}

	body, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	payload, err := ingestion.DecodePayload(body)
	if err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	if matches := cls.MatchingRules(payload); len(matches) > 1 {
		slog.Warn("Payload matches more than one rule; the first wins", "rules", matches)
	}

	outcome, ok, err := cls.Classify(payload)
	if !ok {
		_, err := fmt.Fprintln(out, "unrecognized")
		return err
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(classifyResult{
		Rule:          outcome.Rule,
		OccurredAtISO: outcome.OccurredAtISO,
		Command:       outcome.Command,
	})
}
