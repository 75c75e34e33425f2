package stats

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

type Float interface {
	~float32 | ~float64
}

func toFloat64[T Float | Integer](samples []T) []float64 {
	f := make([]float64, len(samples))
	for i, v := range samples {
		f[i] = float64(v)
	}
	return f
}

// Returns the mean of the given samples, or 0 if there are none.
func Mean[T Float | Integer](samples []T) float64 {
	if len(samples) == 0 {
		return 0
	}
	return stat.Mean(toFloat64(samples), nil)
}

// Returns the lower median of the given samples, or 0 if there are none.
// For an even number of samples this is the smaller of the two middle values,
// so the result is always one of the samples.
func Median[T Float | Integer](samples []T) T {
	if len(samples) == 0 {
		return 0
	}
	f := toFloat64(samples)
	sort.Float64s(f)
	return T(stat.Quantile(0.5, stat.Empirical, f, nil))
}
