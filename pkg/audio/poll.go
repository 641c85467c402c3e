package audio

import "time"

// pollInterval is the sleep between retries in [ReadWithTimeout]. Short
// enough that a 10 ms buffer cadence is never missed by much, long enough
// not to burn a core.
const pollInterval = time.Millisecond

// ReadWithTimeout polls src until it yields a buffer, sleeping between
// attempts, for at most timeout. Time-aware sources pace themselves against
// wall-clock time, so an immediate Read frequently returns nothing; this
// helper is the sanctioned way to wait for the next buffer without spinning.
//
// Returns [ErrReadTimeout] if no buffer became available in time. Source
// errors are returned as-is.
func ReadWithTimeout(src Source, timeout time.Duration) (*Buffer, error) {
	deadline := time.Now().Add(timeout)
	for {
		buf, err := src.Read()
		if err != nil {
			return nil, err
		}
		if buf != nil {
			return buf, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrReadTimeout
		}
		time.Sleep(pollInterval)
	}
}
