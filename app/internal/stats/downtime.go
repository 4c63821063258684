package stats

import "linkwatch/app/internal/models"

// CountDowntimeEvents counts runs of consecutive failed samples that reach
// threshold. A run is counted once, when its length equals threshold; a
// successful sample ends the run. A threshold below 1 is treated as 1.
func CountDowntimeEvents(samples []models.CheckSample, threshold int) int {
	if threshold < 1 {
		threshold = 1
	}

	events := 0
	failures := 0
	for _, s := range samples {
		if s.Success {
			failures = 0
			continue
		}
		failures++
		if failures == threshold {
			events++
		}
	}
	return events
}
