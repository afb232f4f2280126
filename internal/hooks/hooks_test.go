package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsNil(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadConfigParsesHooks(t *testing.T) {
	dir := t.TempDir()
	content := `version: 1
pre_session:
  command: git status --short
  timeout: 5
post_session:
  command: make test
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)
	require.NotNil(t, cfg.PreSession)
	assert.Equal(t, "git status --short", cfg.PreSession.Command)
	assert.Equal(t, 5, cfg.PreSession.Timeout)
	require.NotNil(t, cfg.PostSession)
	assert.Equal(t, "make test", cfg.PostSession.Command)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("version: [broken"), 0644))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestExecuteExpandsVariables(t *testing.T) {
	hook := &HookConfig{Command: `echo "session={{session}} channel={{channel}} remaining={{remaining}}"`}

	out, err := Execute(context.Background(), hook, t.TempDir(), Variables{
		Session:   "2",
		Channel:   "C123",
		Remaining: "7",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "session=2 channel=C123 remaining=7")
}

func TestExecuteNilHookIsNoop(t *testing.T) {
	out, err := Execute(context.Background(), nil, t.TempDir(), Variables{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestExecuteFailureIsGraceful(t *testing.T) {
	hook := &HookConfig{Command: "echo before; exit 7"}

	out, err := Execute(context.Background(), hook, t.TempDir(), Variables{})
	require.NoError(t, err)
	assert.Contains(t, out, "[Hook command failed")
	assert.Contains(t, out, "before")
}

func TestExecuteTimeout(t *testing.T) {
	hook := &HookConfig{Command: "echo partial; sleep 3", Timeout: 1}

	out, err := Execute(context.Background(), hook, t.TempDir(), Variables{})
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "timed out"), "output: %q", out)
	assert.Contains(t, out, "partial")
}

func TestExecuteCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	hook := &HookConfig{Command: "sleep 3"}
	_, err := Execute(ctx, hook, t.TempDir(), Variables{})
	assert.Error(t, err)
}
