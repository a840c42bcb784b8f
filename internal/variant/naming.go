package variant

import "fmt"

// Naming hands out child names for one stage invocation. Counters are kept per
// parent so names depend only on input order, never on how work was scheduled.
// A new Naming must be used for every stage run.
type Naming struct {
	counters map[string]int
}

// NewNaming returns a Naming with all counters at zero.
func NewNaming() *Naming {
	return &Naming{counters: make(map[string]int)}
}

// Next returns the next name under parent: "parent-N", or "configN" for a root config.
func (n *Naming) Next(parent string) string {
	n.counters[parent]++
	idx := n.counters[parent]
	if parent == "" {
		return fmt.Sprintf("config%d", idx)
	}
	return fmt.Sprintf("%s-%d", parent, idx)
}

// Child is shorthand for parent.Child(n.Next(parent.Name), updates).
func (n *Naming) Child(parent Config, updates map[string]any) Config {
	return parent.Child(n.Next(parent.Name), updates)
}

// Duplicates returns names that occur more than once, in first-seen order.
func Duplicates(configs []Config) []string {
	seen := make(map[string]int, len(configs))
	var dups []string
	for _, c := range configs {
		seen[c.Name]++
		if seen[c.Name] == 2 {
			dups = append(dups, c.Name)
		}
	}
	return dups
}
