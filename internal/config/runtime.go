package config

import "sync"

// RuntimeConfig stores configuration set at runtime via CLI flags.
// These values are not persisted to config files.
type RuntimeConfig struct {
	mu        sync.RWMutex
	allowExec bool
	verbose   bool
}

var globalRuntime = &RuntimeConfig{}

// SetAllowExec enables or disables the exec formatter.
// Running an external command is disabled by default for security.
func SetAllowExec(allow bool) {
	globalRuntime.mu.Lock()
	defer globalRuntime.mu.Unlock()
	globalRuntime.allowExec = allow
}

// IsExecAllowed returns whether the exec formatter may run.
func IsExecAllowed() bool {
	globalRuntime.mu.RLock()
	defer globalRuntime.mu.RUnlock()
	return globalRuntime.allowExec
}

// SetVerbose toggles debug logging for the process.
func SetVerbose(v bool) {
	globalRuntime.mu.Lock()
	defer globalRuntime.mu.Unlock()
	globalRuntime.verbose = v
}

// IsVerbose reports whether debug logging was requested on the command line.
func IsVerbose() bool {
	globalRuntime.mu.RLock()
	defer globalRuntime.mu.RUnlock()
	return globalRuntime.verbose
}
