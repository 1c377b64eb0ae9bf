package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSandboxValidatesRoot(t *testing.T) {
	sb, err := NewSandbox("", false, nil)
	require.Error(t, err)
	require.Nil(t, sb)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = NewSandbox(file, false, nil)
	require.Error(t, err)

	dir := t.TempDir()
	sb, err = NewSandbox(dir, true, []string{"FOO", " FOO ", ""})
	require.NoError(t, err)
	resolvedDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, resolvedDir, sb.Root())
	require.Equal(t, []string{"FOO"}, sb.AllowedEnv())
}

func TestSandboxEnvironmentRequiresOptIn(t *testing.T) {
	t.Setenv("USERCHECK_SANDBOX_VAR", "value")

	closed, err := NewSandbox(t.TempDir(), false, []string{"USERCHECK_SANDBOX_VAR"})
	require.NoError(t, err)
	require.Empty(t, closed.Environment())

	open, err := NewSandbox(t.TempDir(), true, []string{"USERCHECK_SANDBOX_VAR", "USERCHECK_SANDBOX_UNSET"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"USERCHECK_SANDBOX_VAR": "value"}, open.Environment())

	var missing *Sandbox
	require.Empty(t, missing.Environment())
}

func TestSandboxResolve(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "payloads")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	target := filepath.Join(nested, "update.json")
	require.NoError(t, os.WriteFile(target, []byte("{}"), 0o600))

	sb, err := NewSandbox(nested, false, nil)
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)

	resolved, err := sb.Resolve("update.json")
	require.NoError(t, err)
	require.Equal(t, want, resolved)

	resolved, err = sb.Resolve("./sub/../update.json")
	require.NoError(t, err)
	require.Equal(t, want, resolved)

	_, err = sb.Resolve("../escape.json")
	require.ErrorContains(t, err, "escapes sandbox")

	_, err = sb.Resolve("missing.json")
	require.Error(t, err)
}
