package behaviour

import "math"

// RhythmCell is a daily_rhythm row enriched with focus/energy heuristics
// derived from its event density relative to the rest of the grid.
type RhythmCell struct {
	Hour        int
	Weekday     int
	EventCount  int
	FocusScore  float64
	EnergyLevel float64
}

// Rhythm returns the full 24x7 grid with focus-score and energy-level
// heuristics: energy level is the cell's density normalised against the
// grid's busiest cell, and focus score is the geometric mean of that
// energy and the cell's hour-of-day total (summed across weekdays)
// relative to the busiest hour, so the busiest cell in the busiest hour
// scores 1.
func (d *Detector) Rhythm() ([]*RhythmCell, error) {
	cells, err := d.store.GetRhythm()
	if err != nil {
		return nil, err
	}

	var peak int
	hourTotals := map[int]int{}
	for _, c := range cells {
		if c.EventCount > peak {
			peak = c.EventCount
		}
		hourTotals[c.Hour] += c.EventCount
	}
	var peakHourTotal int
	for _, n := range hourTotals {
		if n > peakHourTotal {
			peakHourTotal = n
		}
	}

	out := make([]*RhythmCell, 0, len(cells))
	for _, c := range cells {
		energy := 0.0
		if peak > 0 {
			energy = float64(c.EventCount) / float64(peak)
		}
		focus := 0.0
		if peakHourTotal > 0 {
			hourShare := float64(hourTotals[c.Hour]) / float64(peakHourTotal)
			focus = math.Sqrt(energy * hourShare)
		}
		out = append(out, &RhythmCell{
			Hour: c.Hour, Weekday: c.Weekday, EventCount: c.EventCount,
			FocusScore: focus, EnergyLevel: energy,
		})
	}
	return out, nil
}

// PeakHours returns the weekday's hours ranked by event count,
// descending, used by the proactive layer to decide when suggestions
// land well.
func (d *Detector) PeakHours(weekday int) ([]int, error) {
	cells, err := d.store.GetRhythm()
	if err != nil {
		return nil, err
	}
	type hc struct {
		hour  int
		count int
	}
	var hours []hc
	for _, c := range cells {
		if c.Weekday == weekday {
			hours = append(hours, hc{c.Hour, c.EventCount})
		}
	}
	for i := 0; i < len(hours); i++ {
		for j := i + 1; j < len(hours); j++ {
			if hours[j].count > hours[i].count {
				hours[i], hours[j] = hours[j], hours[i]
			}
		}
	}
	out := make([]int, len(hours))
	for i, h := range hours {
		out[i] = h.hour
	}
	return out, nil
}
