package catalog

import (
	"reflect"
	"testing"

	"github.com/1broseidon/monctl/internal/display"
)

func mode(w, h, hz int) display.Mode {
	return display.Mode{Width: w, Height: h, BitDepth: 32, RefreshHz: hz}
}

func TestRefreshRatesForResolution(t *testing.T) {
	modes := []display.Mode{mode(1920, 1080, 60), mode(1920, 1080, 144), mode(2560, 1440, 60)}

	got := RefreshRates(modes, 1920, 1080)
	if !reflect.DeepEqual(got, []int{60, 144}) {
		t.Fatalf("RefreshRates(1920x1080) = %v, want [60 144]", got)
	}
	if got := RefreshRates(modes, 1280, 720); len(got) != 0 {
		t.Fatalf("RefreshRates(1280x720) = %v, want empty", got)
	}
}

func TestResolutionsDedupedByAreaDescending(t *testing.T) {
	modes := []display.Mode{
		mode(1280, 720, 60),
		mode(1920, 1080, 60),
		mode(1920, 1080, 144),
		mode(2560, 1440, 60),
		mode(1280, 1024, 75),
	}
	got := Resolutions(modes)
	var keys []string
	for _, r := range got {
		keys = append(keys, r.Key)
	}
	want := []string{"2560x1440", "1920x1080", "1280x1024", "1280x720"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("Resolutions keys = %v, want %v", keys, want)
	}
}

func TestAspectKey(t *testing.T) {
	tests := []struct {
		w, h int
		want string
	}{
		{3840, 2160, "16:9"},
		{1280, 1024, "5:4"},
		{1920, 1200, "8:5"},
		{2560, 1080, "64:27"},
		{1080, 1920, "9:16"},
		{0, 0, "0:0"},
	}
	for _, tt := range tests {
		if got := AspectKey(tt.w, tt.h); got != tt.want {
			t.Errorf("AspectKey(%d, %d) = %q, want %q", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestPopularFiltersByAspectAndStandard(t *testing.T) {
	modes := []display.Mode{
		mode(1280, 720, 60),
		mode(1600, 900, 60),
		mode(1920, 1080, 60),
		mode(1920, 1200, 60),
		mode(3840, 2160, 60),
		mode(3840, 2160, 30),
	}
	got := Popular(modes, mode(3840, 2160, 60), display.Landscape)

	var labels []string
	for _, p := range got {
		labels = append(labels, p.Label)
	}
	want := []string{"4K", "1080p", "720p"}
	if !reflect.DeepEqual(labels, want) {
		t.Fatalf("Popular labels = %v, want %v", labels, want)
	}
	if got[0].Text != "3840 × 2160 (4K)" {
		t.Fatalf("Popular[0].Text = %q", got[0].Text)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Area <= got[i].Area {
			t.Fatalf("Popular not strictly area-descending at %d: %v", i, got)
		}
	}
}

func TestPopularDeterministic(t *testing.T) {
	a := []display.Mode{mode(1920, 1080, 60), mode(2560, 1440, 60), mode(1280, 720, 60)}
	b := []display.Mode{mode(1280, 720, 60), mode(2560, 1440, 60), mode(1920, 1080, 60)}
	cur := mode(2560, 1440, 60)

	first := Popular(a, cur, display.Landscape)
	second := Popular(b, cur, display.Landscape)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Popular depends on input order:\n%v\n%v", first, second)
	}
	if !reflect.DeepEqual(first, Popular(a, cur, display.Landscape)) {
		t.Fatal("Popular not deterministic for identical input")
	}
}

func TestPopularPortrait(t *testing.T) {
	modes := []display.Mode{mode(1920, 1080, 60), mode(1280, 720, 60)}
	// Rotated current mode as reported by platforms that swap dimensions.
	got := Popular(modes, mode(1080, 1920, 60), display.Portrait)
	if len(got) != 2 || got[0].Label != "1080p" {
		t.Fatalf("Popular(portrait) = %v, want 1080p and 720p", got)
	}
}

func TestPopularAndChoices(t *testing.T) {
	tests := []struct {
		name        string
		modes       []display.Mode
		current     display.Mode
		wantPopular []string
		wantChoices []string
	}{
		{
			name:        "empty mode list",
			modes:       nil,
			current:     display.Mode{},
			wantPopular: nil,
			wantChoices: nil,
		},
		{
			name:        "1080p current with 144Hz and 1440p",
			modes:       []display.Mode{mode(1920, 1080, 60), mode(1920, 1080, 144), mode(2560, 1440, 60)},
			current:     mode(1920, 1080, 60),
			wantPopular: []string{"2560x1440", "1920x1080"},
			wantChoices: []string{"2560x1440", "1920x1080"},
		},
		{
			name:        "no standard match falls back to all resolutions",
			modes:       []display.Mode{mode(1366, 768, 60), mode(1024, 768, 60)},
			current:     mode(1366, 768, 60),
			wantPopular: nil,
			wantChoices: []string{"1366x768", "1024x768"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var popular []string
			for _, p := range Popular(tt.modes, tt.current, display.Landscape) {
				popular = append(popular, p.Key)
			}
			if !reflect.DeepEqual(popular, tt.wantPopular) {
				t.Fatalf("Popular keys = %v, want %v", popular, tt.wantPopular)
			}

			var choices []string
			for _, r := range Choices(tt.modes, tt.current, display.Landscape) {
				choices = append(choices, r.Key)
			}
			if !reflect.DeepEqual(choices, tt.wantChoices) {
				t.Fatalf("Choices keys = %v, want %v", choices, tt.wantChoices)
			}
		})
	}
}

func TestFind(t *testing.T) {
	modes := []display.Mode{
		mode(1920, 1080, 60),
		mode(1920, 1080, 144),
		{Width: 1920, Height: 1080, BitDepth: 24, RefreshHz: 144},
	}
	m, ok := Find(modes, 1920, 1080, 0)
	if !ok || m.RefreshHz != 144 || m.BitDepth != 32 {
		t.Fatalf("Find(hz=0) = %v, %v", m, ok)
	}
	if _, ok := Find(modes, 1920, 1080, 75); ok {
		t.Fatal("Find should reject a refresh rate outside the catalog")
	}
}

func TestFindDepth(t *testing.T) {
	modes := []display.Mode{
		{Width: 2560, Height: 1440, BitDepth: 32, RefreshHz: 165},
		{Width: 2560, Height: 1440, BitDepth: 30, RefreshHz: 120},
		{Width: 2560, Height: 1440, BitDepth: 30, RefreshHz: 60},
	}

	tests := []struct {
		name   string
		depth  int
		hz     int
		want   display.Mode
		wantOK bool
	}{
		{"any depth highest rate", 0, 0, modes[0], true},
		{"depth filters before rate", 30, 0, modes[1], true},
		{"depth and rate", 30, 60, modes[2], true},
		{"depth at missing rate", 30, 165, display.Mode{}, false},
		{"unknown depth", 24, 0, display.Mode{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindDepth(modes, 2560, 1440, tt.depth, tt.hz)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("FindDepth(%d, %d) = %v, %v, want %v, %v", tt.depth, tt.hz, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalizeAndMaxNative(t *testing.T) {
	modes := []display.Mode{mode(1920, 1080, 60), mode(1920, 1080, 60), mode(2560, 1440, 60), mode(2560, 1440, 120)}
	norm := Normalize(modes)
	if len(norm) != 3 {
		t.Fatalf("Normalize len = %d, want 3", len(norm))
	}
	if norm[0] != mode(2560, 1440, 60) {
		t.Fatalf("Normalize[0] = %v", norm[0])
	}
	if got := MaxNative(modes); got != mode(2560, 1440, 120) {
		t.Fatalf("MaxNative = %v", got)
	}
	if !Contains(norm, mode(1920, 1080, 60)) {
		t.Fatal("Contains missed an existing mode")
	}
}
