package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CallScorer/internal/domain"
)

const perfectEvidence = `{"dynamics":{"agentTalkRatio":0.45,"firstValueTimeSeconds":10,"firstCtaTimeSeconds":30},
"brand":{"firstBrandMentionTimeSeconds":5,"brandVariantCount":1},
"outcome":{"finalOutcome":"MEETING_BOOKED","wrapUpPresent":true},
"metadata":{"totalDurationSeconds":240}}`

// executeCmd runs the root command and returns stdout and the error. The
// missing env file keeps the developer's .env out of tests.
func executeCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	rootCmd := NewRootCmd()
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}, args...))
	err := rootCmd.Execute()
	return stdout.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRootHelp(t *testing.T) {
	stdout, err := executeCmd(t, "", "--help")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Available Commands")
	for _, name := range []string{"run", "score", "daemon", "validate"} {
		assert.Contains(t, stdout, name)
	}
}

func TestValidateCommand(t *testing.T) {
	path := writeConfig(t, `
scoring:
  profile: tight
  profiles:
    tight:
      thresholds:
        review: 65
        pass: 90
scheduler:
  batchTiers: [4, 8]
  initialBatchSize: 4
`)

	stdout, err := executeCmd(t, "", "validate", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, stdout, "config ok")
	assert.Contains(t, stdout, "profile: tight (available: default, lenient, strict, tight)")
	assert.Contains(t, stdout, "thresholds: pass >= 90, review >= 65")
	assert.Contains(t, stdout, "batch tiers: [4 8] (initial 4)")
}

func TestValidateCommandRejectsBadConfig(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  minConcurrency: 6
  maxConcurrency: 2
`)

	_, err := executeCmd(t, "", "validate", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.maxConcurrency")
}

func TestScoreCommandFromStdin(t *testing.T) {
	stdout, err := executeCmd(t, perfectEvidence, "score")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stdout, "QCI 100.00 (pass) profile=default\n"), stdout)
	assert.Contains(t, stdout, "gates")
}

func TestScoreCommandJSONWithProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evidence.json")
	require.NoError(t, os.WriteFile(path, []byte(perfectEvidence+"\n"+perfectEvidence), 0o644))

	stdout, err := executeCmd(t, "", "score", "--json", "--profile", "strict", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)

	var res domain.ScoringResult
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &res))
	assert.Equal(t, "strict", res.Profile)
	assert.Equal(t, 100.0, res.TotalScore)
}

func TestScoreCommandErrors(t *testing.T) {
	_, err := executeCmd(t, "", "score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no evidence records")

	_, err = executeCmd(t, "{", "score")
	require.Error(t, err)

	_, err = executeCmd(t, perfectEvidence, "score", "--profile", "missing")
	require.Error(t, err)
}
