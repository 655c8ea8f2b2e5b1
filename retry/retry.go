// Copyright 2026, Square, Inc.

// Package retry retries fallible operations with a doubling wait.
package retry

import (
	"time"
)

type TryFunc func() error
type LogFunc func(err error, wait time.Duration)

// Do calls tryFunc up to tries times, waiting between attempts and doubling
// the wait each time. logFunc (optional) is called with the error before each
// wait. Returns nil on the first success, else the last error.
func Do(tries int, wait time.Duration, tryFunc TryFunc, logFunc LogFunc) error {
	var err error
	for n := 0; n < tries; n++ {
		if err = tryFunc(); err == nil {
			return nil
		}
		if n < tries-1 {
			if logFunc != nil {
				logFunc(err, wait)
			}
			time.Sleep(wait)
			wait *= 2
		}
	}
	return err
}
