package logging

import "strings"

// ProgressSampler thins out progress log lines. It emits whenever the stage
// name changes and otherwise only when percent has advanced past the next
// step boundary, so a long encode logs a handful of lines instead of
// thousands.
type ProgressSampler struct {
	step  float64
	stage string
	next  float64
}

// NewProgressSampler returns a sampler that emits every step percent
// (default 5).
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 5
	}
	return &ProgressSampler{step: step}
}

// ShouldLog reports whether this progress event is worth logging. A negative
// percent means the caller does not know it; such events log only on a stage
// change.
func (s *ProgressSampler) ShouldLog(percent float64, stage string) bool {
	if s == nil {
		return true
	}
	emit := false
	if stage = strings.TrimSpace(stage); stage != "" && stage != s.stage {
		s.stage = stage
		s.next = 0
		emit = true
	}
	if percent >= s.next && percent >= 0 {
		for s.next <= percent && s.next <= 100 {
			s.next += s.step
		}
		emit = true
	}
	return emit
}

// Reset prepares the sampler for a new job.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.stage = ""
	s.next = 0
}
