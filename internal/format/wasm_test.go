package format

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exitModule is a WASI command whose _start calls proc_exit(code).
func exitModule(code byte) []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
		// type: (i32)->(), ()->()
		0x01, 0x08, 0x02, 0x60, 0x01, 0x7f, 0x00, 0x60, 0x00, 0x00,
		// import wasi_snapshot_preview1.proc_exit
		0x02, 0x24, 0x01,
		0x16, 'w', 'a', 's', 'i', '_', 's', 'n', 'a', 'p', 's', 'h', 'o', 't', '_', 'p', 'r', 'e', 'v', 'i', 'e', 'w', '1',
		0x09, 'p', 'r', 'o', 'c', '_', 'e', 'x', 'i', 't',
		0x00, 0x00,
		// func 1: type 1
		0x03, 0x02, 0x01, 0x01,
		// export _start
		0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x01,
		// code: i32.const code; call 0; end
		0x0a, 0x08, 0x01, 0x06, 0x00, 0x41, code, 0x10, 0x00, 0x0b,
	}
}

func writeModule(t *testing.T, name string, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	return dir
}

func TestNewWasmErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewWasm(ctx, WasmConfig{}, nil)
	assert.ErrorContains(t, err, "path is required")

	_, err = NewWasm(ctx, WasmConfig{Path: "missing.wasm", Dir: t.TempDir()}, nil)
	assert.ErrorContains(t, err, "failed to read WASM file")

	dir := writeModule(t, "garbage.wasm", []byte("not a module"))
	_, err = NewWasm(ctx, WasmConfig{Path: "garbage.wasm", Dir: dir}, nil)
	assert.ErrorContains(t, err, "failed to compile WASM module")
}

func TestWasmFormatNonZeroExit(t *testing.T) {
	ctx := context.Background()
	dir := writeModule(t, "fail.wasm", exitModule(3))

	f, err := NewWasm(ctx, WasmConfig{Path: "fail.wasm", Dir: dir}, nil)
	require.NoError(t, err)
	defer f.Close(ctx)

	assert.Equal(t, "wasm:fail.wasm", f.Name())

	_, err = f.Format(ctx, "const x = 1;")
	require.Error(t, err)

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe.Err.Error(), "exited with code 3")
}

func TestWasmFormatZeroExit(t *testing.T) {
	ctx := context.Background()
	dir := writeModule(t, "ok.wasm", exitModule(0))

	f, err := NewWasm(ctx, WasmConfig{Path: "ok.wasm", Dir: dir}, nil)
	require.NoError(t, err)
	defer f.Close(ctx)

	// A clean exit with no output is only acceptable for an empty buffer.
	got, err := f.Format(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	_, err = f.Format(ctx, "const x = 1;")
	assert.ErrorContains(t, err, "empty output")

	// The compiled module is reused across calls.
	_, err = f.Format(ctx, "")
	assert.NoError(t, err)
}
