package stats

import "linkwatch/app/internal/models"

// UptimePercent is the share of successful samples. No data counts as fully up.
func UptimePercent(samples []models.CheckSample) float64 {
	if len(samples) == 0 {
		return 100.0
	}
	up := 0
	for _, s := range samples {
		if s.Success {
			up++
		}
	}
	return float64(up) / float64(len(samples)) * 100
}
