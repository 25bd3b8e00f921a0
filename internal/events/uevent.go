package events

import "bytes"

// isDRMChange reports whether a raw uevent is a drm subsystem change,
// e.g. "change@/devices/.../drm/card0\0ACTION=change\0SUBSYSTEM=drm\0HOTPLUG=1".
func isDRMChange(msg []byte) bool {
	fields := bytes.Split(msg, []byte{0})
	drm := false
	change := false
	for _, f := range fields {
		switch {
		case bytes.Equal(f, []byte("SUBSYSTEM=drm")):
			drm = true
		case bytes.Equal(f, []byte("ACTION=change")), bytes.Equal(f, []byte("ACTION=add")), bytes.Equal(f, []byte("ACTION=remove")):
			change = true
		}
	}
	return drm && change
}
