package reviewer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RosterEntry defines one reviewer in the roster file.
type RosterEntry struct {
	ID      string   `yaml:"id"`
	Kind    string   `yaml:"kind"` // "anthropic" or "command"
	Model   string   `yaml:"model,omitempty"`
	Focus   string   `yaml:"focus,omitempty"`
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	Weight  float64  `yaml:"weight,omitempty"`
}

// Roster is the parsed reviewers file.
type Roster struct {
	Reviewers []RosterEntry `yaml:"reviewers"`
}

// LoadRoster reads and validates a reviewers.yaml file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster decodes roster YAML and validates every entry.
func ParseRoster(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if len(r.Reviewers) == 0 {
		return nil, fmt.Errorf("roster defines no reviewers")
	}

	seen := make(map[string]bool, len(r.Reviewers))
	for i, e := range r.Reviewers {
		if e.ID == "" {
			return nil, fmt.Errorf("reviewer %d: missing id", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate reviewer id: %s", e.ID)
		}
		seen[e.ID] = true

		switch e.Kind {
		case "anthropic":
			if e.Model == "" {
				return nil, fmt.Errorf("reviewer %s: anthropic kind requires a model", e.ID)
			}
		case "command":
			if e.Command == "" {
				return nil, fmt.Errorf("reviewer %s: command kind requires a command", e.ID)
			}
		default:
			return nil, fmt.Errorf("reviewer %s: unknown kind %q", e.ID, e.Kind)
		}
	}
	return &r, nil
}

// Weights returns the per-reviewer confidence weight map for entries
// that declare one.
func (r *Roster) Weights() map[string]float64 {
	weights := map[string]float64{}
	for _, e := range r.Reviewers {
		if e.Weight > 0 {
			weights[e.ID] = e.Weight
		}
	}
	return weights
}

// Adapters builds an adapter per roster entry, filtered to ids when
// non-empty. apiKey applies to anthropic-kind reviewers.
func (r *Roster) Adapters(apiKey string, ids []string) ([]Adapter, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var adapters []Adapter
	for _, e := range r.Reviewers {
		if len(want) > 0 && !want[e.ID] {
			continue
		}
		switch e.Kind {
		case "anthropic":
			adapters = append(adapters, NewLLMAdapter(e.ID, apiKey, e.Model, e.Focus))
		case "command":
			adapters = append(adapters, NewCommandAdapter(e.ID, e.Command, e.Args...))
		}
	}
	if len(want) > 0 && len(adapters) != len(want) {
		for _, id := range ids {
			found := false
			for _, a := range adapters {
				if a.ID() == id {
					found = true
					break
				}
			}
			if !found {
				return nil, fmt.Errorf("reviewer %s not in roster", id)
			}
		}
	}
	return adapters, nil
}
