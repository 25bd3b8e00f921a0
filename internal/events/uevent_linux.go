//go:build linux

package events

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// UeventSource listens for kernel DRM hotplug uevents on a netlink socket.
type UeventSource struct{}

// NewUeventSource returns a source for drm subsystem uevents.
func NewUeventSource() *UeventSource {
	return &UeventSource{}
}

func (s *UeventSource) Name() string { return "uevent" }

// Run reads uevents until ctx is done and calls notify for drm changes.
func (s *UeventSource) Run(ctx context.Context, notify func()) error {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return fmt.Errorf("failed to open uevent socket: %w", err)
	}
	defer unix.Close(fd)

	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: 1, Pid: 0}
	if err := unix.Bind(fd, addr); err != nil {
		return fmt.Errorf("failed to bind uevent socket: %w", err)
	}
	// Wake up periodically to notice cancellation.
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("failed to set uevent socket timeout: %w", err)
	}

	buf := make([]byte, 16*1024)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				continue
			}
			return fmt.Errorf("uevent read: %w", err)
		}
		if isDRMChange(buf[:n]) {
			notify()
		}
	}
}
