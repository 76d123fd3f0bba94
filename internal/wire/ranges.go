package wire

import "fmt"

// Range is an inclusive numeric bound for a control.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Ranges are the control bounds a deck UI offers. The service enforces its own
// limits; these only guard the HTTP surface against obvious typos.
var Ranges = struct {
	BPM         Range `json:"bpm"`
	Guidance    Range `json:"guidance"`
	Density     Range `json:"density"`
	Brightness  Range `json:"brightness"`
	Temperature Range `json:"temperature"`
	TopK        Range `json:"topK"`
	Seed        Range `json:"seed"`
	Weight      Range `json:"weight"`
}{
	BPM:         Range{60, 200},
	Guidance:    Range{0, 6},
	Density:     Range{0, 1},
	Brightness:  Range{0, 1},
	Temperature: Range{0, 3},
	TopK:        Range{1, 1000},
	Seed:        Range{0, 2147483647},
	Weight:      Range{0, 3},
}

// CheckConfig reports the first field of cfg outside Ranges or naming an
// unknown enum value.
func CheckConfig(cfg GenerationConfig) error {
	floats := []struct {
		name string
		v    *float64
		r    Range
	}{
		{"temperature", cfg.Temperature, Ranges.Temperature},
		{"guidance", cfg.Guidance, Ranges.Guidance},
		{"density", cfg.Density, Ranges.Density},
		{"brightness", cfg.Brightness, Ranges.Brightness},
	}
	for _, f := range floats {
		if f.v != nil && !f.r.contains(*f.v) {
			return fmt.Errorf("%s %v outside [%v, %v]", f.name, *f.v, f.r.Min, f.r.Max)
		}
	}

	ints := []struct {
		name string
		v    *int
		r    Range
	}{
		{"topK", cfg.TopK, Ranges.TopK},
		{"seed", cfg.Seed, Ranges.Seed},
		{"bpm", cfg.BPM, Ranges.BPM},
	}
	for _, f := range ints {
		if f.v != nil && !f.r.contains(float64(*f.v)) {
			return fmt.Errorf("%s %d outside [%v, %v]", f.name, *f.v, f.r.Min, f.r.Max)
		}
	}

	if !cfg.Scale.Valid() {
		return fmt.Errorf("unknown scale %q", cfg.Scale)
	}
	if !cfg.MusicGenerationMode.Valid() {
		return fmt.Errorf("unknown generation mode %q", cfg.MusicGenerationMode)
	}
	return nil
}

// CheckWeight reports a prompt weight outside (0, 3].
func CheckWeight(w float64) error {
	if w <= Ranges.Weight.Min || w > Ranges.Weight.Max {
		return fmt.Errorf("weight %v outside (%v, %v]", w, Ranges.Weight.Min, Ranges.Weight.Max)
	}
	return nil
}
