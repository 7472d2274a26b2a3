package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JHils/phile-gate-whispers-sub003/internal/state"
)

func execute(t *testing.T, path string, args ...string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	base := []string{
		"--env", filepath.Join(t.TempDir(), "missing.env"),
		"--storage", "file",
		"--path", path,
	}
	root.SetArgs(append(base, args...))
	require.NoError(t, root.Execute(), errOut.String())
	return out.String()
}

func TestVisitFlagScore(t *testing.T) {
	t.Setenv("WHISPERS_TUNING", "")
	path := filepath.Join(t.TempDir(), "whispers.json")

	execute(t, path, "visit")
	execute(t, path, "flag", "helpCalled")
	assert.Contains(t, execute(t, path, "flag", "helpCalled"), "already set")

	out := execute(t, path, "score")
	assert.Contains(t, out, "visits: 1")
	assert.Contains(t, out, "score:  11 (Drifter)")
	assert.Contains(t, out, "trust:  35 (none)")
}

func TestSayAndState(t *testing.T) {
	t.Setenv("WHISPERS_TUNING", "")
	path := filepath.Join(t.TempDir(), "whispers.json")

	assert.Contains(t, execute(t, path, "say", "I", "am", "so", "lonely"), "mood: sadness")

	var v state.VisitorState
	require.NoError(t, json.Unmarshal([]byte(execute(t, path, "state")), &v))
	require.Len(t, v.Echoes, 1)
	assert.Equal(t, "I am so lonely", v.Echoes[0].OriginalText)
}

func TestForgetKeepsVisits(t *testing.T) {
	t.Setenv("WHISPERS_TUNING", "")
	path := filepath.Join(t.TempDir(), "whispers.json")

	execute(t, path, "visit")
	execute(t, path, "confess", "--emotion", "fear", "I lied")
	execute(t, path, "forget")

	var v state.VisitorState
	require.NoError(t, json.Unmarshal([]byte(execute(t, path, "state")), &v))
	assert.Equal(t, 1, v.VisitCount)
	assert.Empty(t, v.Echoes)
	assert.True(t, v.Events.Has("forgotten"))
}

func TestSimulateIsDeterministic(t *testing.T) {
	t.Setenv("WHISPERS_TUNING", "")
	dir := t.TempDir()
	args := []string{"simulate", "--steps", "200", "--seed", "7"}

	a := execute(t, filepath.Join(dir, "a.json"), args...)
	b := execute(t, filepath.Join(dir, "b.json"), args...)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "final: score")
}
