package deployment

// FleetStatistics is a point-in-time summary of the fleet. Every client
// falls into exactly one status bucket, so the buckets sum to Total; the
// version buckets count what each client currently runs.
type FleetStatistics struct {
	Total            int64            `json:"total"`
	ByStatus         map[Status]int64 `json:"by_status"`
	ByVersion        map[string]int64 `json:"by_version"`
	UptimePercentage float64          `json:"uptime_percentage"`
}

// ComputeFleetStatistics derives fleet statistics from a snapshot of
// deployments. Uptime is the share of the whole fleet currently ONLINE.
func ComputeFleetStatistics(deployments []Deployment) FleetStatistics {
	stats := FleetStatistics{
		Total:     int64(len(deployments)),
		ByStatus:  make(map[Status]int64),
		ByVersion: make(map[string]int64),
	}

	var online int64
	for i := range deployments {
		d := &deployments[i]
		stats.ByStatus[d.Status]++
		stats.ByVersion[d.AppVersion]++
		if d.Status == StatusOnline {
			online++
		}
	}

	if stats.Total > 0 {
		stats.UptimePercentage = float64(online) / float64(stats.Total) * 100
	}

	return stats
}
