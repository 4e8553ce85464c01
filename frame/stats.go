package frame

import (
	"time"

	"github.com/loov/hrtime"
)

// Stats summarizes CPU-side frame times measured around DrawFrame.
type Stats struct {
	Frames    uint64
	Last      time.Duration
	Min       time.Duration
	Max       time.Duration
	Total     time.Duration
	Recreated uint64
}

// Mean returns the average frame time.
func (s Stats) Mean() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Frames)
}

type frameTimer struct {
	start time.Duration
}

func startTimer() frameTimer {
	return frameTimer{start: hrtime.Now()}
}

func (t frameTimer) record(s *Stats) {
	d := hrtime.Since(t.start)
	s.Frames++
	s.Last = d
	s.Total += d
	if s.Frames == 1 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
}
