//go:build amd64

package clock

// cycles reads the CPU time stamp counter via RDTSC.
// Implemented in cycles_amd64.s.
func cycles() uint64
