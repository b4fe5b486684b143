package engine

import (
	"errors"
	"time"
)

// defines the protocol-engine retry/ack configuration range, in the same
// shape as the teacher's cs104.Config (named t0..t3/k/w ranges): a
// min/max pair per field plus a Valid() that fills in defaults.
const (
	// RetryCountMin/Max bound the acknowledged/request-response retry
	// budget ("R" in §4.3).
	RetryCountMin = 0
	RetryCountMax = 15

	// RetryTimerMin/Max bound the base inter-retry timer; the engine
	// backs this off exponentially per retry (§4.3).
	RetryTimerMin = 50 * time.Millisecond
	RetryTimerMax = 30 * time.Second

	// RepeatCountMin/Max bound the repeated-service fire count ("N").
	RepeatCountMin = 1
	RepeatCountMax = 255

	// RepeatIntervalMin/Max bound the interval between repeats.
	RepeatIntervalMin = 10 * time.Millisecond
	RepeatIntervalMax = 10 * time.Second
)

// Config defines the protocol engine's retry/ack timing. The default is
// applied for each unspecified value, mirroring cs104.Config.Valid().
type Config struct {
	// RetryCount is "R": the maximum number of retries for an
	// acknowledged or request/response send before giving up.
	RetryCount uint8

	// RetryTimer is the base inter-retry timer; actual waits back off
	// exponentially (timer, 2*timer, 4*timer, ...) up to RetryTimerMax.
	RetryTimer time.Duration

	// RepeatCount is "N": how many times an unacknowledged-repeated send
	// fires.
	RepeatCount uint8

	// RepeatInterval is the spacing between repeats.
	RepeatInterval time.Duration
}

// Valid fills in defaults for zero fields and range-checks the rest.
func (c *Config) Valid() error {
	if c == nil {
		return errors.New("engine: invalid pointer")
	}
	if c.RetryCount == 0 {
		c.RetryCount = 3
	} else if c.RetryCount > RetryCountMax {
		return errors.New("engine: RetryCount out of range")
	}
	if c.RetryTimer == 0 {
		c.RetryTimer = 1 * time.Second
	} else if c.RetryTimer < RetryTimerMin || c.RetryTimer > RetryTimerMax {
		return errors.New("engine: RetryTimer out of range")
	}
	if c.RepeatCount == 0 {
		c.RepeatCount = 1
	} else if c.RepeatCount > RepeatCountMax {
		return errors.New("engine: RepeatCount out of range")
	}
	if c.RepeatInterval == 0 {
		c.RepeatInterval = 100 * time.Millisecond
	} else if c.RepeatInterval < RepeatIntervalMin || c.RepeatInterval > RepeatIntervalMax {
		return errors.New("engine: RepeatInterval out of range")
	}
	return nil
}

// DefaultConfig returns the engine's default retry/ack configuration.
func DefaultConfig() Config {
	return Config{
		RetryCount:     3,
		RetryTimer:     1 * time.Second,
		RepeatCount:    1,
		RepeatInterval: 100 * time.Millisecond,
	}
}

// BackoffFor returns the inter-retry wait for the given retry attempt
// (0-based), exponential and capped at RetryTimerMax (§4.3: "retry up to
// R times with exponential timer").
func (c Config) BackoffFor(attempt int) time.Duration {
	d := c.RetryTimer
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= RetryTimerMax {
			return RetryTimerMax
		}
	}
	return d
}
