package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyDefaultRules(t *testing.T) {
	table, err := NewTable(DefaultRules())
	require.NoError(t, err)

	cases := []struct {
		filename string
		repo     string
		dir      string
	}{
		{"forecast.yml", "platform", ".github/workflows/"},
		{"pipeline.yaml", "platform", ".github/workflows/"},
		{"planner_node_v2.py", "platform", "src/nodes/"},
		{"scraper_agent.py", "platform", "src/agents/"},
		{"auction_scraper.py", "harvester", "src/scrapers/"},
		{"utils.py", "platform", "src/"},
		{"chat.html", "webapp", "public/"},
		{"style.css", "webapp", "public/"},
		{"app.js", "webapp", "public/"},
		{"SKILL.md", "platform", "skills/"},
		{"README.md", "platform", "docs/"},
		{"summary.docx", "platform", "reports/"},
		{"invoice.pdf", "platform", "reports/"},
		{"data.bin", "platform", "artifacts/"},
		{"", "platform", "artifacts/"},
	}
	for _, tc := range cases {
		t.Run(tc.filename, func(t *testing.T) {
			dst := table.Classify(tc.filename)
			assert.Equal(t, tc.repo, dst.Repo)
			assert.Equal(t, tc.dir, dst.Dir)
		})
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	table, err := NewTable([]Rule{
		{Pattern: `.*_agent.*\.py$`, Repo: "agents-repo", Dir: "agents/"},
		{Pattern: `.*\.py$`, Repo: "generic-repo", Dir: "src/"},
		{Pattern: `.*`, Repo: "misc", Dir: "artifacts/"},
	})
	require.NoError(t, err)

	// scraper_agent.py matches both the agent rule and the generic python
	// rule; declaration order decides.
	assert.Equal(t, "agents-repo", table.Classify("scraper_agent.py").Repo)
	assert.Equal(t, "generic-repo", table.Classify("scraper.py").Repo)
}

func TestClassifyCaseInsensitive(t *testing.T) {
	table, err := NewTable(DefaultRules())
	require.NoError(t, err)

	assert.Equal(t, "docs/", table.Classify("Readme.MD").Dir)
	assert.Equal(t, ".github/workflows/", table.Classify("Deploy.YML").Dir)
}

func TestSkillDocPrecedesGenericMarkdown(t *testing.T) {
	table, err := NewTable(DefaultRules())
	require.NoError(t, err)

	assert.Equal(t, "skills/", table.Classify("SKILL.md").Dir)
	assert.Equal(t, "docs/", table.Classify("OTHER_SKILL.md").Dir, "only the literal SKILL.md is special")
}

func TestNewTableValidation(t *testing.T) {
	t.Run("empty table", func(t *testing.T) {
		_, err := NewTable(nil)
		assert.Error(t, err)
	})
	t.Run("invalid pattern", func(t *testing.T) {
		_, err := NewTable([]Rule{{Pattern: `([`, Repo: "r"}})
		assert.Error(t, err)
	})
	t.Run("missing repo", func(t *testing.T) {
		_, err := NewTable([]Rule{{Pattern: `.*`, Repo: ""}})
		assert.Error(t, err)
	})
	t.Run("final rule not catch-all", func(t *testing.T) {
		_, err := NewTable([]Rule{{Pattern: `.*\.py$`, Repo: "r", Dir: "src/"}})
		assert.ErrorContains(t, err, "catch-all")
	})
}

func TestRepos(t *testing.T) {
	table, err := NewTable(DefaultRules())
	require.NoError(t, err)
	assert.Equal(t, []string{"platform", "harvester", "webapp"}, table.Repos())
}
