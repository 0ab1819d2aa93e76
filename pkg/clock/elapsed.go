package clock

// Elapsed-time helpers. All of them clamp a nominally negative span to
// zero: stamps taken from differently-configured clocks, or fixed test
// times, can legitimately arrive out of order, and a negative duration
// is never a useful answer.

// UsecSince returns e - s in microseconds, clamped to zero.
func UsecSince(s, e Time) int64 {
	sec := e.Sec - s.Sec
	usec := e.Usec - s.Usec
	if sec > 0 && usec < 0 {
		sec--
		usec += 1000000
	}
	if sec < 0 || (sec == 0 && usec < 0) {
		return 0
	}
	return sec*1000000 + usec
}

// MsecSince returns e - s in milliseconds, clamped to zero.
func MsecSince(s, e Time) int64 {
	return UsecSince(s, e) / 1000
}

// SecondsSince returns e - s in seconds, clamped to zero.
func SecondsSince(s, e Time) float64 {
	return float64(UsecSince(s, e)) / 1e6
}

// UsecSinceNow returns the microseconds elapsed since s.
func (c *Clock) UsecSinceNow(s Time) int64 {
	return UsecSince(s, c.Now())
}

// MsecSinceNow returns the milliseconds elapsed since s.
func (c *Clock) MsecSinceNow(s Time) int64 {
	return MsecSince(s, c.Now())
}
