package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when the goroutine count exceeds threshold,
// a cheap proxy for leaked goroutines.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("%d goroutines running, threshold is %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when any recent garbage collection pause exceeded
// the given duration.
func GCMaxPauseCheck(max time.Duration) CheckFunc {
	threshold := uint64(max.Nanoseconds())
	return func(context.Context) error {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		for _, pause := range stats.PauseNs {
			if pause > threshold {
				return errors.Errorf("gc pause of %v exceeds %v", time.Duration(pause), max)
			}
		}
		return nil
	}
}
