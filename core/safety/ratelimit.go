package safety

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/wardenledger/kernel/core/types"
)

// SubmissionLimiter paces commitment-declaration submissions per worldline
// with a token-bucket limiter. Its Counters method offers the
// RapidEscalation coercion check (spec.md §4.I) a real
// observed-rate-vs-ceiling reading instead of a caller-supplied guess.
type SubmissionLimiter struct {
	mu       sync.Mutex
	limiters map[types.WorldlineId]*rate.Limiter
	rps      float64
	burst    int
}

// NewSubmissionLimiter constructs a limiter allowing up to rps submissions
// per second (with the given burst) for any single worldline. A non-positive
// rps disables pacing: Allow always reports true.
func NewSubmissionLimiter(rps float64, burst int) *SubmissionLimiter {
	return &SubmissionLimiter{limiters: make(map[types.WorldlineId]*rate.Limiter), rps: rps, burst: burst}
}

func (s *SubmissionLimiter) limiterFor(wid types.WorldlineId) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[wid]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.rps), s.burst)
		s.limiters[wid] = l
	}
	return l
}

// Allow reports whether wid may submit right now without exceeding its
// pacing ceiling, consuming a token if so. It never blocks.
func (s *SubmissionLimiter) Allow(wid types.WorldlineId) bool {
	if s.rps <= 0 {
		return true
	}
	return s.limiterFor(wid).Allow()
}

// Counters reports the escalation counters DetectCoercion's RapidEscalation
// check expects: the configured ceiling and how far under water wid's
// bucket currently is (burst minus remaining tokens), a proxy for how much
// faster than its ceiling the worldline has been submitting.
func (s *SubmissionLimiter) Counters(wid types.WorldlineId) EscalationCounters {
	l := s.limiterFor(wid)
	observed := float64(s.burst) - l.Tokens()
	if observed < 0 {
		observed = 0
	}
	return EscalationCounters{
		RateCeiling:  s.rps,
		ObservedRate: observed,
	}
}
