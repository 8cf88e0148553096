package auditlog

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipyard/internal/deploy"
	"shipyard/internal/manifest"
	"shipyard/internal/verify"
)

func sampleOutcome(name string, status deploy.Status) deploy.Outcome {
	return deploy.Outcome{
		Manifest: manifest.Manifest{
			Filename:   name,
			TargetRepo: "platform",
			TargetPath: "docs/" + name,
			Checksum:   "deadbeef",
			SizeBytes:  12,
		},
		Status: status,
	}
}

func TestLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deployment_log.json")
	started := time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC)

	l := NewLog("run-42", started)
	l.Append(sampleOutcome("README.md", deploy.StatusAccepted))
	l.Append(sampleOutcome("broken.py", deploy.StatusError))
	require.NoError(t, l.WriteDeploymentLog(path))

	runID, ts, outcomes, err := ReadDeploymentLog(path)
	require.NoError(t, err)
	assert.Equal(t, "run-42", runID)
	assert.Equal(t, started, ts)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "README.md", outcomes[0].Manifest.Filename)
	assert.Equal(t, deploy.StatusError, outcomes[1].Status)
}

func TestLogConcurrentAppend(t *testing.T) {
	l := NewLog("run-1", time.Now())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(sampleOutcome("f.md", deploy.StatusAccepted))
		}()
	}
	wg.Wait()
	assert.Len(t, l.Outcomes(), 50)
}

func TestLogCollisionKeepsBothEntries(t *testing.T) {
	l := NewLog("run-1", time.Now())
	l.AppendAll([]deploy.Outcome{
		sampleOutcome("data.csv", deploy.StatusAccepted),
		sampleOutcome("data.csv", deploy.StatusAccepted),
	})

	outcomes := l.Outcomes()
	require.Len(t, outcomes, 2)
	assert.Equal(t, outcomes[0].Manifest.TargetPath, outcomes[1].Manifest.TargetPath,
		"both writes to the colliding path are preserved in the log")
}

func TestReadDeploymentLogErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, _, _, err := ReadDeploymentLog(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})
	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
		_, _, _, err := ReadDeploymentLog(path)
		assert.ErrorContains(t, err, "parse")
	})
}

func TestWriteVerificationReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verification_report.json")
	report := verify.Report{
		Total:       2,
		Verified:    1,
		Failed:      1,
		SuccessRate: 0.5,
		Details: []verify.Detail{
			{Filename: "a.md", Repo: "platform", Path: "docs/a.md", Verified: true},
			{Filename: "b.md", Repo: "platform", Path: "docs/b.md", Verified: false},
		},
	}
	require.NoError(t, WriteVerificationReport(path, "run-42", time.Now(), report))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"success_rate": 0.5`)
	assert.Contains(t, string(data), `"run_id": "run-42"`)
}

func TestWriteScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy_commands.sh")
	require.NoError(t, WriteScript(path, "#!/bin/bash\necho ok\n"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}
