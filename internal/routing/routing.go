// Package routing maps artifact filenames to repository destinations using
// an ordered rule table. Rules are evaluated in declaration order and the
// first match wins, so specific patterns (a filename containing "_agent")
// take precedence over general ones (any ".py") purely by placement. The
// final rule is a mandatory catch-all, making classification a total
// function: every filename resolves to exactly one destination.
package routing

import (
	"fmt"
	"regexp"

	"shipyard/internal/manifest"
)

// Rule pairs a filename pattern with the destination it routes to.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Repo    string `yaml:"repo"`
	Dir     string `yaml:"dir"`
	Label   string `yaml:"label"`
}

// Table is a compiled, ordered rule set ending in a catch-all.
type Table struct {
	rules []compiledRule
}

type compiledRule struct {
	re   *regexp.Regexp
	dest manifest.Destination
}

// DefaultRules is the stock routing table. SKILL.md is listed ahead of the
// generic *.md rule so skill documentation lands in skills/ rather than
// docs/; the exception lives in the table, not in code. The terminal rule
// matches everything.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: `.*\.ya?ml$`, Repo: "platform", Dir: ".github/workflows/", Label: "Workflow definition"},
		{Pattern: `.*_node.*\.py$`, Repo: "platform", Dir: "src/nodes/", Label: "Graph node module"},
		{Pattern: `.*_agent.*\.py$`, Repo: "platform", Dir: "src/agents/", Label: "Agent module"},
		{Pattern: `.*_scraper.*\.py$`, Repo: "harvester", Dir: "src/scrapers/", Label: "Scraper module"},
		{Pattern: `.*\.py$`, Repo: "platform", Dir: "src/", Label: "Python module"},
		{Pattern: `.*\.(html|css|js)$`, Repo: "webapp", Dir: "public/", Label: "Web artifact"},
		{Pattern: `^SKILL\.md$`, Repo: "platform", Dir: "skills/", Label: "Skill documentation"},
		{Pattern: `.*\.md$`, Repo: "platform", Dir: "docs/", Label: "Documentation"},
		{Pattern: `.*\.(docx|pdf)$`, Repo: "platform", Dir: "reports/", Label: "Report"},
		{Pattern: `.*`, Repo: "platform", Dir: "artifacts/", Label: "Unclassified artifact"},
	}
}

// NewTable compiles the rules in order. Patterns are anchored at the start
// and matched case-insensitively. The final rule must be a catch-all; a
// table whose last pattern can miss would make classification partial,
// which is a configuration error, not a runtime condition.
func NewTable(rules []Rule) (*Table, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("routing table is empty")
	}
	t := &Table{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		re, err := regexp.Compile(`(?i)^(?:` + r.Pattern + `)`)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid pattern %q: %w", i, r.Pattern, err)
		}
		if r.Repo == "" {
			return nil, fmt.Errorf("rule %d: destination repo is empty", i)
		}
		t.rules = append(t.rules, compiledRule{
			re:   re,
			dest: manifest.Destination{Repo: r.Repo, Dir: r.Dir, Label: r.Label},
		})
	}
	if !t.rules[len(t.rules)-1].re.MatchString("") {
		return nil, fmt.Errorf("final rule %q is not a catch-all", rules[len(rules)-1].Pattern)
	}
	return t, nil
}

// Classify resolves a filename to its destination. Total: the catch-all
// guarantees a result for any input.
func (t *Table) Classify(filename string) manifest.Destination {
	for _, r := range t.rules {
		if r.re.MatchString(filename) {
			return r.dest
		}
	}
	// Unreachable with a validated table; returning the terminal rule's
	// destination keeps the contract total even if it ever happens.
	return t.rules[len(t.rules)-1].dest
}

// Repos returns the closed set of repositories the table can route to,
// in first-appearance order.
func (t *Table) Repos() []string {
	seen := make(map[string]bool)
	var repos []string
	for _, r := range t.rules {
		if !seen[r.dest.Repo] {
			seen[r.dest.Repo] = true
			repos = append(repos, r.dest.Repo)
		}
	}
	return repos
}
