package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestBuild(t *testing.T) {
	now := time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)
	rec := FileRecord{
		Path:    "/outputs/scraper_agent.py",
		Name:    "scraper_agent.py",
		Size:    420,
		ModTime: now.Add(-time.Hour),
	}
	dst := Destination{Repo: "platform", Dir: "src/agents/", Label: "Agent module"}
	p := Payload{Encoding: EncodingText, Transport: []byte("print('hi')"), Checksum: "abc123"}

	m := Build(rec, dst, p, fixedClock{now})

	assert.Equal(t, "/outputs/scraper_agent.py", m.SourcePath)
	assert.Equal(t, "scraper_agent.py", m.Filename)
	assert.Equal(t, "platform", m.TargetRepo)
	assert.Equal(t, "src/agents/scraper_agent.py", m.TargetPath)
	assert.Equal(t, "Agent module", m.Label)
	assert.False(t, m.Binary)
	assert.Equal(t, "abc123", m.Checksum)
	assert.Equal(t, int64(420), m.SizeBytes)
	assert.Equal(t, now, m.CreatedAt)
}

func TestBuildBinaryFlag(t *testing.T) {
	m := Build(
		FileRecord{Name: "report.pdf"},
		Destination{Repo: "platform", Dir: "reports/"},
		Payload{Encoding: EncodingBinary},
		fixedClock{time.Now()},
	)
	assert.True(t, m.Binary)
	assert.Equal(t, "reports/report.pdf", m.TargetPath)
}

func TestDestinationRelativePath(t *testing.T) {
	t.Run("trailing slash dir", func(t *testing.T) {
		d := Destination{Repo: "platform", Dir: "docs/"}
		assert.Equal(t, "docs/README.md", d.RelativePath("README.md"))
	})
	t.Run("empty dir keeps bare filename", func(t *testing.T) {
		d := Destination{Repo: "platform"}
		assert.Equal(t, "README.md", d.RelativePath("README.md"))
	})
}
