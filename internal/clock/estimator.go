package clock

import (
	"sort"
	"time"
)

// OutlierThreshold is the maximum distance from the median for a timestamp
// to take part in the estimate.
const OutlierThreshold = 60 * time.Second

// Candidate is an exchange timestamp observed for one instrument.
type Candidate struct {
	Code string
	At   time.Time
}

// Estimate is the result of one calibration.
type Estimate struct {
	Skew     time.Duration
	Inliers  []Candidate
	Outliers []Candidate
}

// FilterOutliers splits candidates into inliers and outliers:
//   - 0 or 1 candidates are used as-is
//   - with exactly 2, only the later one is kept (the earlier is assumed stale)
//   - with 3 or more, candidates within threshold of the median are kept
func FilterOutliers(candidates []Candidate, threshold time.Duration) (inliers, outliers []Candidate) {
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return []Candidate{candidates[0]}, nil
	case 2:
		if candidates[1].At.After(candidates[0].At) {
			return []Candidate{candidates[1]}, []Candidate{candidates[0]}
		}
		return []Candidate{candidates[0]}, []Candidate{candidates[1]}
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At.Before(sorted[j].At)
	})
	median := sorted[len(sorted)/2].At

	if threshold < 0 {
		threshold = -threshold
	}
	for _, c := range sorted {
		d := c.At.Sub(median)
		if d < 0 {
			d = -d
		}
		if d < threshold {
			inliers = append(inliers, c)
		} else {
			outliers = append(outliers, c)
		}
	}
	return inliers, outliers
}

// EstimateSkew computes captured − mean(inliers) with millisecond precision.
// ok is false when no inlier survives.
func EstimateSkew(captured time.Time, candidates []Candidate) (Estimate, bool) {
	inliers, outliers := FilterOutliers(candidates, OutlierThreshold)
	if len(inliers) == 0 {
		return Estimate{Outliers: outliers}, false
	}

	var sum int64
	for _, c := range inliers {
		sum += c.At.UnixMilli()
	}
	mean := sum / int64(len(inliers))

	return Estimate{
		Skew:     time.Duration(captured.UnixMilli()-mean) * time.Millisecond,
		Inliers:  inliers,
		Outliers: outliers,
	}, true
}
