package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 15, 13, 0, 0, 0, time.UTC)

func at(offset time.Duration) Candidate {
	return Candidate{Code: "X", At: base.Add(offset)}
}

func TestFilterOutliers_ExcludesFarTimestamp(t *testing.T) {
	candidates := []Candidate{at(0), at(0), at(5 * time.Second), at(120 * time.Second)}

	inliers, outliers := FilterOutliers(candidates, OutlierThreshold)

	require.Len(t, inliers, 3)
	require.Len(t, outliers, 1)
	assert.Equal(t, base.Add(120*time.Second), outliers[0].At)
}

func TestFilterOutliers_TwoKeepsLater(t *testing.T) {
	inliers, _ := FilterOutliers([]Candidate{at(0), at(time.Second)}, OutlierThreshold)
	require.Len(t, inliers, 1)
	assert.Equal(t, base.Add(time.Second), inliers[0].At)

	inliers, _ = FilterOutliers([]Candidate{at(time.Second), at(0)}, OutlierThreshold)
	require.Len(t, inliers, 1)
	assert.Equal(t, base.Add(time.Second), inliers[0].At)
}

func TestFilterOutliers_SingleAndEmpty(t *testing.T) {
	inliers, outliers := FilterOutliers(nil, OutlierThreshold)
	assert.Empty(t, inliers)
	assert.Empty(t, outliers)

	inliers, outliers = FilterOutliers([]Candidate{at(0)}, OutlierThreshold)
	assert.Len(t, inliers, 1)
	assert.Empty(t, outliers)
}

func TestFilterOutliers_DoesNotReorderInput(t *testing.T) {
	candidates := []Candidate{at(3 * time.Second), at(0), at(time.Second)}
	FilterOutliers(candidates, OutlierThreshold)
	assert.Equal(t, base.Add(3*time.Second), candidates[0].At)
}

func TestEstimateSkew(t *testing.T) {
	captured := base.Add(10 * time.Second)
	candidates := []Candidate{at(0), at(0), at(6 * time.Second), at(120 * time.Second)}

	est, ok := EstimateSkew(captured, candidates)
	require.True(t, ok)

	// mean of inliers = base+2s
	assert.Equal(t, 8*time.Second, est.Skew)
	assert.Len(t, est.Inliers, 3)
	assert.Len(t, est.Outliers, 1)
}

func TestEstimateSkew_NoCandidates(t *testing.T) {
	_, ok := EstimateSkew(base, nil)
	assert.False(t, ok)
}

func TestSkew_SingleAssignment(t *testing.T) {
	s := NewSkew()

	_, known := s.Value()
	assert.False(t, known)

	select {
	case <-s.Ready():
		t.Fatal("Ready() closed before Set")
	default:
	}

	require.True(t, s.Set(3*time.Second))
	assert.False(t, s.Set(9*time.Second))

	d, known := s.Value()
	assert.True(t, known)
	assert.Equal(t, 3*time.Second, d)

	select {
	case <-s.Ready():
	default:
		t.Fatal("Ready() not closed after Set")
	}
}

func TestSkew_ConcurrentSet(t *testing.T) {
	s := NewSkew()

	var wg sync.WaitGroup
	wins := make(chan time.Duration, 10)
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(d time.Duration) {
			defer wg.Done()
			if s.Set(d) {
				wins <- d
			}
		}(time.Duration(i) * time.Millisecond)
	}
	wg.Wait()
	close(wins)

	var winners []time.Duration
	for d := range wins {
		winners = append(winners, d)
	}
	require.Len(t, winners, 1)

	d, _ := s.Value()
	assert.Equal(t, winners[0], d)
}
