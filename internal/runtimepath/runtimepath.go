// Package runtimepath locates the per-user directory that holds the daemon
// socket.
package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

const (
	// EnvSocket overrides the socket path for both daemon and clients.
	EnvSocket = "MONCTL_SOCKET"

	socketName = "monctl.sock"
)

// Dir returns the first usable runtime directory: $XDG_RUNTIME_DIR, then
// /run/user/<uid> when it exists and is writable, then a private directory
// under the system temp dir, created on demand.
func Dir() (string, error) {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir, nil
	}

	uid := strconv.Itoa(os.Getuid())
	if dir := filepath.Join("/run/user", uid); writableDir(dir) {
		return dir, nil
	}

	fallback := filepath.Join(os.TempDir(), "monctl-runtime-"+uid)
	if err := os.MkdirAll(fallback, 0o700); err != nil {
		return "", fmt.Errorf("failed to create runtime dir: %w", err)
	}
	return fallback, nil
}

// SocketPath returns the daemon IPC socket path.
func SocketPath() (string, error) {
	if path := os.Getenv(EnvSocket); path != "" {
		return path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, socketName), nil
}

func writableDir(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	return unix.Access(dir, unix.W_OK|unix.X_OK) == nil
}
