package sched

// Buckets partitions the effective priority range into timeslice bands.
// Effective priority (base + adjust, with adjust in [-8,8]) maps to a
// longer slice for higher-priority tasks: they are trusted to be
// I/O-bound or otherwise well-behaved, so giving them more uninterrupted
// run time amortizes scheduling overhead without starving lower-priority
// work (still bounded, and soft preemption still applies).
var buckets = []struct {
	minPrio int32
	sliceMs int64
}{
	{minPrio: 16, sliceMs: 40},
	{minPrio: 8, sliceMs: 25},
	{minPrio: 0, sliceMs: 15},
	{minPrio: -8, sliceMs: 8},
}

// TimesliceFor returns the timeslice, in milliseconds, a task at the given
// effective priority should receive. Monotonic non-decreasing in priority,
// as required by spec §9's open question on the priority-to-timeslice
// function.
func TimesliceFor(effectivePrio int32) int64 {
	for _, b := range buckets {
		if effectivePrio >= b.minPrio {
			return b.sliceMs
		}
	}
	return buckets[len(buckets)-1].sliceMs
}
