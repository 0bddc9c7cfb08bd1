package format

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0755)
	require.NoError(t, err)
}

func TestNewExec(t *testing.T) {
	_, err := NewExec(ExecConfig{Cmd: "   "}, nil)
	assert.Error(t, err)

	f, err := NewExec(ExecConfig{
		Cmd:         "prettier --stdin-filepath playground.ts",
		Options:     Options{PrintWidth: 100, SingleQuote: true},
		PassOptions: true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "exec:prettier", f.Name())
	assert.Equal(t, []string{"--stdin-filepath", "playground.ts", "--print-width=100", "--single-quote"}, f.Args())
}

func TestExecFormat(t *testing.T) {
	tmpDir := t.TempDir()
	writeScript(t, tmpDir, "upper.sh", "tr 'a-z' 'A-Z'\n")

	f, err := NewExec(ExecConfig{Cmd: "./upper.sh", Dir: tmpDir}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := f.Format(ctx, "const x = ok(1);\n")
	require.NoError(t, err)
	assert.Equal(t, "CONST X = OK(1);\n", got)
}

func TestExecFormatPassesOptions(t *testing.T) {
	tmpDir := t.TempDir()
	writeScript(t, tmpDir, "args.sh", "cat >/dev/null\necho \"$@\"\n")

	f, err := NewExec(ExecConfig{
		Cmd:         "./args.sh --parser typescript",
		Dir:         tmpDir,
		Options:     Options{TabWidth: 4, UseTabs: true},
		PassOptions: true,
	}, nil)
	require.NoError(t, err)

	got, err := f.Format(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "--parser typescript --tab-width=4 --use-tabs\n", got)
}

func TestExecFormatEnv(t *testing.T) {
	tmpDir := t.TempDir()
	writeScript(t, tmpDir, "env.sh", "cat >/dev/null\nprintf '%s' \"$STYLE\"\n")

	f, err := NewExec(ExecConfig{Cmd: "./env.sh", Dir: tmpDir, Env: map[string]string{"STYLE": "compact"}}, nil)
	require.NoError(t, err)

	got, err := f.Format(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "compact", got)
}

func TestExecFormatFailure(t *testing.T) {
	tmpDir := t.TempDir()
	writeScript(t, tmpDir, "fail.sh", "cat >/dev/null\necho 'SyntaxError: Unexpected token (1:7)' >&2\nexit 2\n")

	f, err := NewExec(ExecConfig{Cmd: "./fail.sh", Dir: tmpDir}, nil)
	require.NoError(t, err)

	_, err = f.Format(context.Background(), "const = ;")
	require.Error(t, err)

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "exec:./fail.sh", fe.Formatter)
	assert.Equal(t, "SyntaxError: Unexpected token (1:7)", fe.Stderr)
}

func TestExecFormatEmptyOutput(t *testing.T) {
	tmpDir := t.TempDir()
	writeScript(t, tmpDir, "silent.sh", "cat >/dev/null\n")

	f, err := NewExec(ExecConfig{Cmd: "./silent.sh", Dir: tmpDir}, nil)
	require.NoError(t, err)

	_, err = f.Format(context.Background(), "const x = 1;")
	assert.ErrorContains(t, err, "empty output")
}

func TestExecFormatTimeout(t *testing.T) {
	tmpDir := t.TempDir()
	writeScript(t, tmpDir, "slow.sh", "exec sleep 5\n")

	f, err := NewExec(ExecConfig{Cmd: "./slow.sh", Dir: tmpDir, Timeout: 100 * time.Millisecond}, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = f.Format(context.Background(), "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestExecFormatMissingCommand(t *testing.T) {
	f, err := NewExec(ExecConfig{Cmd: "resultplay-no-such-formatter"}, nil)
	require.NoError(t, err)

	_, err = f.Format(context.Background(), "x")
	var fe *FormatError
	assert.True(t, errors.As(err, &fe))
}
