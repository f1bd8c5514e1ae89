package config

import (
	"fmt"
	"strings"
)

// Validate checks every structural invariant from spec §4.1 and §8
// Scenario 6 (schema mismatch is caught later, at EnsureSchema time; this
// only validates the declaration itself), collecting every problem found
// rather than stopping at the first.
func (c *Config) Validate() error {
	var problems []string

	if c.Database.Provider != "sqlite" && c.Database.Provider != "mysql" {
		problems = append(problems, "database provider must be \"sqlite\" or \"mysql\"")
	}
	if c.Database.Database == "" {
		problems = append(problems, "database name must not be empty")
	}
	if c.Database.Table.Name == "" {
		problems = append(problems, "table name must not be empty")
	}
	if len(c.Database.Table.Keyfields) == 0 {
		problems = append(problems, "at least one keyfield is required")
	}

	seen := map[string]bool{}
	for _, k := range c.Database.Table.Keyfields {
		if k.Name == "" {
			problems = append(problems, "keyfield name must not be empty")
			continue
		}
		if seen[k.Name] {
			problems = append(problems, fmt.Sprintf("duplicate keyfield name %q", k.Name))
		}
		seen[k.Name] = true
	}

	for _, lt := range c.Database.Table.Logtables {
		fullName := c.Database.Table.LogtableFullName(lt.Name)
		if !strings.HasPrefix(fullName, c.Database.Table.Name) {
			problems = append(problems, fmt.Sprintf("logtable %q must nest under table name %q", lt.Name, c.Database.Table.Name))
		}
		if len(lt.Columns) == 0 {
			problems = append(problems, fmt.Sprintf("logtable %q must declare at least one column", lt.Name))
		}
	}

	if c.NJobs < 1 {
		problems = append(problems, "n_jobs must be a positive integer")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
