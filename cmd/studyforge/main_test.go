package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyforge/internal/config"
	"studyforge/internal/content"
	"studyforge/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	cfg := testsupport.NewConfig(t)
	// Nothing listens on port 1, so status falls back to the local store.
	cfg.Paths.APIBind = "127.0.0.1:1"

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	body := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[blob_store]\nbackend = \"local\"\nlocal_dir = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.BlobStore.LocalDir,
	)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// openStore reads the database the CLI wrote. Each CLI invocation closes its
// own handle before returning.
func openStore(t *testing.T, env *cliTestEnv) *content.Store {
	t.Helper()
	cfg, _, _, err := config.Load(env.configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.EnsureDirectories())
	return testsupport.MustOpenStore(t, cfg)
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "in-memory")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, env, "config", "init", "--path", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote sample configuration")
	_, err = os.Stat(target)
	require.NoError(t, err)

	_, _, err = runCLI(t, env, "config", "init", "--path", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// The sample must load cleanly.
	_, _, _, err = config.Load(target)
	require.NoError(t, err)
}

func TestContentAddAndList(t *testing.T) {
	env := setupCLITestEnv(t)
	source := testsupport.WriteFile(t, filepath.Join(env.baseDir, "lecture.srt"), testsupport.SampleSRT)

	out, _, err := runCLI(t, env, "content", "add", source, "--owner", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered lecture (video)")

	out, _, err = runCLI(t, env, "content", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "lecture")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "0/5")

	out, _, err = runCLI(t, env, "content", "list", "--owner", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "No content")

	items, err := openStore(t, env).List(context.Background(), content.ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NotEmpty(t, items[0].BlobKey, "source is retained in the blob store")

	out, _, err = runCLI(t, env, "content", "show", items[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "transcription")
	assert.Contains(t, out, "quizGeneration")
}

func TestContentAddRejectsUnsupportedFile(t *testing.T) {
	env := setupCLITestEnv(t)
	source := testsupport.WriteFile(t, filepath.Join(env.baseDir, "movie.mkv"), "binary")

	_, _, err := runCLI(t, env, "content", "add", source, "--owner", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file extension")

	_, _, err = runCLI(t, env, "content", "add", source)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--owner")
}

func TestSoftDeleteRestoreAndPermanentDelete(t *testing.T) {
	env := setupCLITestEnv(t)
	source := testsupport.WriteFile(t, filepath.Join(env.baseDir, "notes.md"), "# Cells\nCells are the unit of life.\n")
	_, _, err := runCLI(t, env, "content", "add", source, "--owner", "alice")
	require.NoError(t, err)

	items, err := openStore(t, env).List(context.Background(), content.ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	id := items[0].ID

	out, _, err := runCLI(t, env, "delete", "soft", id, "--requester", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Soft-deleted")

	out, _, err = runCLI(t, env, "content", "list", "--deleted", "only")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, _, err = runCLI(t, env, "delete", "restore", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored")

	_, _, err = runCLI(t, env, "delete", "permanent", id, "--requester", "mallory")
	require.Error(t, err)

	out, _, err = runCLI(t, env, "delete", "permanent", id, "--requester", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+id)

	out, _, err = runCLI(t, env, "content", "list", "--deleted", "include")
	require.NoError(t, err)
	assert.Contains(t, out, "No content")
}

func TestDeleteSweepAndReconcileWithNothingToDo(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "delete", "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to delete")

	out, _, err = runCLI(t, env, "delete", "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "No stalled sagas")
}

func TestQuizAttemptFlow(t *testing.T) {
	env := setupCLITestEnv(t)
	store := openStore(t, env)
	item := testsupport.NewContent(t, store, "alice", "/tmp/notes.md")
	quiz, err := store.CreateQuizVersion(context.Background(), content.QuizDraft{
		ContentID:  item.ID,
		Difficulty: content.DifficultyIntermediate,
		Title:      "Capitals",
		Questions: []content.Question{
			{ID: "q1", Type: content.QuestionShortAnswer, Prompt: "Capital of France?", CorrectAnswer: content.SingleAnswer("Paris"), Points: 1, Tags: []string{"geography"}},
			{ID: "q2", Type: content.QuestionTrueFalse, Prompt: "Rome is in Spain.", CorrectAnswer: content.SingleAnswer("false"), Points: 1, Tags: []string{"geography"}},
		},
	}, 3)
	require.NoError(t, err)

	out, _, err := runCLI(t, env, "quiz", "list", item.ID)
	require.NoError(t, err)
	assert.Contains(t, out, quiz.ID)

	out, _, err = runCLI(t, env, "quiz", "show", quiz.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Capital of France?")
	assert.NotContains(t, out, "Answer:")

	out, _, err = runCLI(t, env, "quiz", "start", quiz.ID, "--user", "alice")
	require.NoError(t, err)
	attemptID := strings.TrimSpace(strings.TrimPrefix(out, "Started attempt "))
	require.NotEmpty(t, attemptID)

	answers := testsupport.WriteFile(t, filepath.Join(env.baseDir, "answers.json"), `{"q1": " paris ", "q2": false}`)
	out, _, err = runCLI(t, env, "quiz", "submit", attemptID, "--answers", answers, "--time", "20s")
	require.NoError(t, err)
	assert.Contains(t, out, "Score 2 / 2 (100.0%)")
	assert.Contains(t, out, "Next difficulty: advanced (raise)")

	_, _, err = runCLI(t, env, "quiz", "submit", attemptID, "--answers", answers)
	require.Error(t, err, "completed attempts are closed")
}

func TestStatusWithoutDaemonFallsBackToStore(t *testing.T) {
	env := setupCLITestEnv(t)
	source := testsupport.WriteFile(t, filepath.Join(env.baseDir, "notes.txt"), "Mitochondria produce ATP.")
	_, _, err := runCLI(t, env, "content", "add", source, "--owner", "alice")
	require.NoError(t, err)

	out, _, err := runCLI(t, env, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not running")
	assert.Contains(t, out, "pending:")
}

func TestReadAnswersSortsByQuestion(t *testing.T) {
	path := testsupport.WriteFile(t, filepath.Join(t.TempDir(), "a.json"), `{"q2": ["a", "b"], "q1": "x"}`)
	answers, err := readAnswers(path)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, "q1", answers[0].QuestionID)
	assert.False(t, answers[0].Answer.Multi)
	assert.Equal(t, []string{"a", "b"}, answers[1].Answer.Values)
	assert.True(t, answers[1].Answer.Multi)
}

func TestRenderStatusLine(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	assert.Equal(t, want, got)

	colored := renderStatusLine("Daemon", statusOK, "Running", true)
	assert.True(t, len(colored) > len(ansiGreen) && colored[:len(ansiGreen)] == ansiGreen)
}
