package runtimepath

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestDir(t *testing.T) {
	xdg := t.TempDir()
	uid := strconv.Itoa(os.Getuid())

	tests := []struct {
		name string
		xdg  string
		ok   func(string) bool
	}{
		{
			name: "xdg runtime dir wins",
			xdg:  xdg,
			ok:   func(got string) bool { return got == xdg },
		},
		{
			name: "falls back without xdg",
			xdg:  "",
			ok: func(got string) bool {
				return got == filepath.Join("/run/user", uid) ||
					got == filepath.Join(os.TempDir(), "monctl-runtime-"+uid)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_RUNTIME_DIR", tt.xdg)
			got, err := Dir()
			if err != nil {
				t.Fatalf("Dir() error: %v", err)
			}
			if !tt.ok(got) {
				t.Fatalf("Dir() = %q", got)
			}
			if info, err := os.Stat(got); err != nil || !info.IsDir() {
				t.Fatalf("Dir() = %q is not a directory: %v", got, err)
			}
		})
	}
}

func TestSocketPath(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", xdg)

	t.Setenv(EnvSocket, "")
	got, err := SocketPath()
	if err != nil {
		t.Fatalf("SocketPath() error: %v", err)
	}
	if want := filepath.Join(xdg, "monctl.sock"); got != want {
		t.Fatalf("SocketPath() = %q, want %q", got, want)
	}

	t.Setenv(EnvSocket, "/tmp/custom.sock")
	if got, err := SocketPath(); err != nil || got != "/tmp/custom.sock" {
		t.Fatalf("SocketPath() = %q, %v, want override", got, err)
	}
}

func TestWritableDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if !writableDir(dir) {
		t.Fatalf("writableDir(%q) = false, want true", dir)
	}
	if writableDir(file) {
		t.Fatalf("writableDir(%q) = true for a regular file", file)
	}
	if writableDir(filepath.Join(dir, "missing")) {
		t.Fatal("writableDir() = true for a missing path")
	}
}
