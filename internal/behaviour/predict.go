package behaviour

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mnemocore/mnemocore/internal/store"
)

// predictionWindow is how far out a generated prediction looks.
const predictionWindow = 30 * time.Minute

// GeneratePredictions turns the current strongest habit patterns that
// match now's hour into next_action predictions, one per matching
// pattern, with a window starting now and ending predictionWindow later.
// Every call inserts fresh predictions; existing pending predictions are
// left unchanged.
func (d *Detector) GeneratePredictions(now int64) error {
	patterns, err := d.store.ListPatterns("habit", d.ConfidenceFloor)
	if err != nil {
		return err
	}
	hour := time.Unix(now, 0).UTC().Hour()
	for _, p := range patterns {
		var desc struct {
			EventKind string `json:"eventKind"`
			Hour      int    `json:"hour"`
		}
		if err := json.Unmarshal([]byte(p.Descriptor), &desc); err != nil {
			continue
		}
		if desc.Hour != hour {
			continue
		}
		pred := &store.Prediction{
			ID:          uuid.NewString(),
			Kind:        "next_action",
			WindowStart: now,
			WindowEnd:   now + int64(predictionWindow.Seconds()),
			Confidence:  p.Confidence,
			Outcome:     "pending",
			CreatedAt:   now,
		}
		if err := d.store.InsertPrediction(pred); err != nil {
			return err
		}
	}
	return nil
}

// ResolvePendingPredictions checks every pending prediction whose window
// has elapsed against recentEvents: correct if any event occurred inside
// the window, otherwise incorrect. The event's kind is not compared with
// the habit that produced the prediction.
func (d *Detector) ResolvePendingPredictions(now int64, recentEvents []*store.Event) error {
	pending, err := d.store.ListPendingPredictions(now)
	if err != nil {
		return err
	}
	for _, p := range pending {
		if p.WindowEnd > now {
			continue
		}
		outcome := "incorrect"
		for _, e := range recentEvents {
			if e.Instant >= p.WindowStart && e.Instant <= p.WindowEnd {
				outcome = "correct"
				break
			}
		}
		if err := d.store.ResolvePrediction(p.ID, outcome); err != nil {
			return err
		}
	}
	return nil
}

// Accuracy returns the realised accuracy of predictions of kind over a
// sliding window of the last n resolved predictions.
func (d *Detector) Accuracy(kind string, window int) (float64, error) {
	return d.store.PredictionAccuracy(kind, window)
}
