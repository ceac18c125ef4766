package compress

// Rung is one quality level on the compression ladder. All rungs emit
// MP4 with H.264 video and AAC audio so the output streams in browsers
// regardless of the source codec.
type Rung struct {
	Name     string
	MaxWidth int
	CRF      int
	Preset   string
}

// The ladder from best to worst quality. Passes only ever descend.
var ladder = []Rung{
	{Name: "high", MaxWidth: 1920, CRF: 23, Preset: "medium"},
	{Name: "medium", MaxWidth: 1280, CRF: 28, Preset: "fast"},
	{Name: "low", MaxWidth: 854, CRF: 32, Preset: "veryfast"},
}

const (
	startMediumBytes = 15 << 20
	startLowBytes    = 30 << 20
)

// StartRung picks the first rung by input size. Big files start low:
// they need the most reduction and extra quality would be wasted on a
// pass that gets recompressed anyway.
func StartRung(sizeBytes int64) Rung {
	switch {
	case sizeBytes > startLowBytes:
		return ladder[2]
	case sizeBytes > startMediumBytes:
		return ladder[1]
	default:
		return ladder[0]
	}
}

// NextRung returns the rung below r, or false from the floor.
func NextRung(r Rung) (Rung, bool) {
	for i, candidate := range ladder {
		if candidate.Name == r.Name && i+1 < len(ladder) {
			return ladder[i+1], true
		}
	}
	return Rung{}, false
}

// Rungs returns the ladder top to bottom.
func Rungs() []Rung {
	out := make([]Rung, len(ladder))
	copy(out, ladder)
	return out
}
