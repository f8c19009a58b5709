package stats

import (
	"math"
	"strconv"
	"time"
)

// Window is one trailing span the aggregator counts over, sampled for trends at its own cadence.
type Window struct {
	Key            string
	Span           time.Duration
	MaxHistory     int
	UpdateInterval time.Duration
}

// DefaultWindows returns the 1/5/15/30/60 minute windows. Larger windows sample less often
// so sparse activity does not flap between 0% and 100%.
func DefaultWindows() []Window {
	return []Window{
		{Key: "1min", Span: time.Minute, MaxHistory: 12, UpdateInterval: 10 * time.Second},
		{Key: "5min", Span: 5 * time.Minute, MaxHistory: 12, UpdateInterval: time.Minute},
		{Key: "15min", Span: 15 * time.Minute, MaxHistory: 8, UpdateInterval: 2 * time.Minute},
		{Key: "30min", Span: 30 * time.Minute, MaxHistory: 8, UpdateInterval: 3 * time.Minute},
		{Key: "60min", Span: time.Hour, MaxHistory: 24, UpdateInterval: 5 * time.Minute},
	}
}

// Direction of a trend.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
	Flat Direction = "flat"
)

// Trend is the change of a window count against its previous sample.
type Trend struct {
	Direction Direction `json:"direction"`
	Percent   int       `json:"percent"`
}

// String renders the trend the way the dashboard shows it: "+100%", "-50%", "0%".
func (t Trend) String() string {
	switch {
	case t.Direction == Up:
		return "+" + strconv.Itoa(t.Percent) + "%"
	case t.Direction == Down:
		return strconv.Itoa(t.Percent) + "%"
	default:
		return "0%"
	}
}

// ComputeTrend compares current with previous. A rise from zero is reported as +100%
// and no change from zero as 0%; the denominator is never zero.
func ComputeTrend(previous, current int) Trend {
	diff := current - previous
	var pct int
	switch {
	case previous > 0:
		pct = roundHalfUp(float64(diff) / float64(previous) * 100)
	case diff > 0:
		pct = 100
	}

	switch {
	case diff > 0:
		return Trend{Direction: Up, Percent: pct}
	case diff < 0:
		return Trend{Direction: Down, Percent: pct}
	default:
		return Trend{Direction: Flat}
	}
}

// roundHalfUp rounds .5 toward positive infinity, so -2.5 becomes -2.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// Point is one sampled window count.
type Point struct {
	Value int       `json:"value"`
	At    time.Time `json:"at"`
}

type series struct {
	window     Window
	points     []Point
	lastUpdate time.Time
	count      int
	trend      Trend
}

func (s *series) due(now time.Time) bool {
	return s.lastUpdate.IsZero() || now.Sub(s.lastUpdate) >= s.window.UpdateInterval
}

// sample appends count to the history and returns the trend against the previous sample.
func (s *series) sample(count int, now time.Time) Trend {
	previous := 0
	if n := len(s.points); n > 0 {
		previous = s.points[n-1].Value
	}
	s.lastUpdate = now
	s.points = append(s.points, Point{Value: count, At: now})
	if max := s.window.MaxHistory; max > 0 && len(s.points) > max {
		s.points = append([]Point(nil), s.points[len(s.points)-max:]...)
	}
	s.trend = ComputeTrend(previous, count)
	return s.trend
}
