// Package catalog derives resolution, refresh-rate and "popular resolution"
// views from a monitor's raw mode list. Everything here is pure.
package catalog

import (
	"fmt"
	"sort"

	"github.com/1broseidon/monctl/internal/display"
)

// Resolution is a distinct width x height pair from a mode list.
type Resolution struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Key    string `json:"key"`
	Area   int    `json:"area"`
}

// PopularResolution is a resolution that matches a well-known named standard.
type PopularResolution struct {
	Resolution
	Label string `json:"label"`
	Text  string `json:"text"`
}

type standard struct {
	width, height int
	label         string
}

var standards = []standard{
	{1280, 720, "720p"},
	{1280, 1024, "SXGA"},
	{1920, 1080, "1080p"},
	{1920, 1200, "WUXGA"},
	{2560, 1440, "2K"},
	{2560, 1600, "WQXGA"},
	{3840, 2160, "4K"},
}

// Normalize drops duplicate modes and orders the rest by area descending,
// then refresh ascending, then bit depth descending.
func Normalize(modes []display.Mode) []display.Mode {
	seen := make(map[display.Mode]bool, len(modes))
	out := make([]display.Mode, 0, len(modes))
	for _, m := range modes {
		if m.Width <= 0 || m.Height <= 0 || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Area() != b.Area() {
			return a.Area() > b.Area()
		}
		if a.Width != b.Width {
			return a.Width > b.Width
		}
		if a.RefreshHz != b.RefreshHz {
			return a.RefreshHz < b.RefreshHz
		}
		return a.BitDepth > b.BitDepth
	})
	return out
}

// Resolutions returns the distinct resolutions in modes, largest area first.
func Resolutions(modes []display.Mode) []Resolution {
	seen := make(map[string]bool)
	var out []Resolution
	for _, m := range modes {
		key := m.Key()
		if m.Width <= 0 || m.Height <= 0 || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, newResolution(m.Width, m.Height))
	}
	sortByArea(out)
	return out
}

// RefreshRates returns the distinct refresh rates available at w x h in
// ascending order.
func RefreshRates(modes []display.Mode, w, h int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, m := range modes {
		if m.Width != w || m.Height != h || seen[m.RefreshHz] {
			continue
		}
		seen[m.RefreshHz] = true
		out = append(out, m.RefreshHz)
	}
	sort.Ints(out)
	return out
}

// Popular returns the resolutions sharing the current mode's aspect ratio
// that also match a named standard, largest area first. Portrait
// orientations are compared with the long side as width.
func Popular(modes []display.Mode, current display.Mode, orientation display.Orientation) []PopularResolution {
	cw, ch := landscape(current.Width, current.Height, orientation)
	want := AspectKey(cw, ch)

	var out []PopularResolution
	for _, r := range Resolutions(modes) {
		w, h := landscape(r.Width, r.Height, orientation)
		if AspectKey(w, h) != want {
			continue
		}
		label, ok := standardLabel(w, h)
		if !ok {
			continue
		}
		out = append(out, PopularResolution{
			Resolution: r,
			Label:      label,
			Text:       fmt.Sprintf("%d × %d (%s)", r.Width, r.Height, label),
		})
	}
	return out
}

// Choices returns the popular set as plain resolutions, or every resolution
// when no popular entry exists.
func Choices(modes []display.Mode, current display.Mode, orientation display.Orientation) []Resolution {
	popular := Popular(modes, current, orientation)
	if len(popular) == 0 {
		return Resolutions(modes)
	}
	out := make([]Resolution, 0, len(popular))
	for _, p := range popular {
		out = append(out, p.Resolution)
	}
	return out
}

// AspectKey reduces w:h by their greatest common divisor.
func AspectKey(w, h int) string {
	g := gcd(w, h)
	if g == 0 {
		return "0:0"
	}
	return fmt.Sprintf("%d:%d", w/g, h/g)
}

// Contains reports whether mode is one of modes.
func Contains(modes []display.Mode, mode display.Mode) bool {
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Find looks up the mode for w x h at hz, preferring the deepest bit depth.
// hz of zero selects the highest refresh rate for the resolution.
func Find(modes []display.Mode, w, h, hz int) (display.Mode, bool) {
	return FindDepth(modes, w, h, 0, hz)
}

// FindDepth is Find restricted to one bit depth; depth of zero matches any.
func FindDepth(modes []display.Mode, w, h, depth, hz int) (display.Mode, bool) {
	var best display.Mode
	found := false
	for _, m := range modes {
		if m.Width != w || m.Height != h {
			continue
		}
		if depth != 0 && m.BitDepth != depth {
			continue
		}
		if hz != 0 && m.RefreshHz != hz {
			continue
		}
		if !found || m.RefreshHz > best.RefreshHz ||
			(m.RefreshHz == best.RefreshHz && m.BitDepth > best.BitDepth) {
			best = m
			found = true
		}
	}
	return best, found
}

// MaxNative returns the largest-area mode, highest refresh on ties.
func MaxNative(modes []display.Mode) display.Mode {
	var best display.Mode
	for _, m := range modes {
		if m.Area() > best.Area() || (m.Area() == best.Area() && m.RefreshHz > best.RefreshHz) {
			best = m
		}
	}
	return best
}

func newResolution(w, h int) Resolution {
	return Resolution{Width: w, Height: h, Key: fmt.Sprintf("%dx%d", w, h), Area: w * h}
}

func sortByArea(rs []Resolution) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Area != rs[j].Area {
			return rs[i].Area > rs[j].Area
		}
		return rs[i].Width > rs[j].Width
	})
}

func landscape(w, h int, o display.Orientation) (int, int) {
	if o.IsPortrait() && h > w {
		return h, w
	}
	return w, h
}

func standardLabel(w, h int) (string, bool) {
	for _, s := range standards {
		if s.width == w && s.height == h {
			return s.label, true
		}
	}
	return "", false
}

func gcd(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
