// Package stats holds the per-character numbers the ball reads when it is
// thrown or hits someone: damage, speed, accuracy, resistance and size.
package stats

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type Stats map[string]float64

// Table implements session.StatProvider. Characters inherit every stat they
// do not set from Default.
type Table struct {
	Default    Stats            `yaml:"default"`
	Characters map[string]Stats `yaml:"characters"`
}

func (t *Table) Stat(character, name string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	if stats, ok := t.Characters[character]; ok {
		if value, ok := stats[name]; ok {
			return value, true
		}
	}
	value, ok := t.Default[name]
	return value, ok
}

// Names returns the defined character names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.Characters))
	for name := range t.Characters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Table) Validate() error {
	check := func(owner string, stats Stats) error {
		for name, value := range stats {
			if value < 0 {
				return fmt.Errorf("%s: stat %s is negative", owner, name)
			}
		}
		return nil
	}

	if err := check("default", t.Default); err != nil {
		return err
	}
	for _, name := range t.Names() {
		if err := check(name, t.Characters[name]); err != nil {
			return err
		}
	}
	return nil
}

func Parse(data []byte) (*Table, error) {
	table := &Table{}
	if err := yaml.Unmarshal(data, table); err != nil {
		return nil, fmt.Errorf("could not parse stat table: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
