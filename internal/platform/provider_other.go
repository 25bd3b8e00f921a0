//go:build !linux

package platform

import (
	"context"
	"fmt"
	"runtime"
)

func newSystemProvider(ctx context.Context, opts Options) (Provider, error) {
	return nil, fmt.Errorf("no display backend for %s; use backend: fake", runtime.GOOS)
}
