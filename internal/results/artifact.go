package results

import (
	"math"
	"time"
)

// Stats summarizes an output volume for preview without loading the data.
type Stats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	RMS  float64 `json:"rms"`
}

// Artifact is the opaque output payload of a succeeded job: the derived
// volume plus enough metadata to interpret it.
type Artifact struct {
	JobID     string    `json:"job_id"`
	DatasetID string    `json:"dataset_id"`
	Algorithm string    `json:"algorithm"`
	Dims      [3]int    `json:"dims"`
	Summary   Stats     `json:"summary"`
	CreatedAt time.Time `json:"created_at"`

	Data []float32 `json:"-"`
}

// Summarize computes preview statistics over a volume.
func Summarize(data []float32) Stats {
	if len(data) == 0 {
		return Stats{}
	}
	min := math.Inf(1)
	max := math.Inf(-1)
	var sum, sumSq float64
	for _, v := range data {
		f := float64(v)
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
		sum += f
		sumSq += f * f
	}
	n := float64(len(data))
	return Stats{
		Min:  min,
		Max:  max,
		Mean: sum / n,
		RMS:  math.Sqrt(sumSq / n),
	}
}
