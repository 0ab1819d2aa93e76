//go:build arm64

package clock

// cycles reads the virtual counter CNTVCT_EL0. It ticks at a fixed
// frequency independent of CPU frequency scaling, so one calibration
// holds for the process lifetime. Implemented in cycles_arm64.s.
func cycles() uint64
