package model

type Metrics struct {
	SchemaVersion   int             `yaml:"schema_version"`
	FileType        string          `yaml:"file_type"`
	StartedAt       string          `yaml:"started_at"`
	Phase           Phase           `yaml:"phase"`
	Target          string          `yaml:"target"`
	FleetNodes      int             `yaml:"fleet_nodes"`
	FreeThreads     int             `yaml:"free_threads"`
	LastPartition   *Partition      `yaml:"last_partition,omitempty"`
	Counters        MetricsCounters `yaml:"counters"`
	DaemonHeartbeat *string         `yaml:"daemon_heartbeat"`
	UpdatedAt       *string         `yaml:"updated_at"`
}

// MetricsCounters are cumulative for the lifetime of one daemon process.
type MetricsCounters struct {
	Iterations         int `yaml:"iterations" json:"iterations"`
	DiscoveryGaps      int `yaml:"discovery_gaps" json:"discovery_gaps"`
	PenaltyRounds      int `yaml:"penalty_rounds" json:"penalty_rounds"`
	YieldRounds        int `yaml:"yield_rounds" json:"yield_rounds"`
	CorrectiveRounds   int `yaml:"corrective_rounds" json:"corrective_rounds"`
	Batches            int `yaml:"batches" json:"batches"`
	SkippedBatches     int `yaml:"skipped_batches" json:"skipped_batches"`
	SimpleActions      int `yaml:"simple_actions" json:"simple_actions"`
	ThreadsPlaced      int `yaml:"threads_placed" json:"threads_placed"`
	PlacementFailures  int `yaml:"placement_failures" json:"placement_failures"`
	EmptyRounds        int `yaml:"empty_rounds" json:"empty_rounds"`
	FallbackSelections int `yaml:"fallback_selections" json:"fallback_selections"`
	NodesRooted        int `yaml:"nodes_rooted" json:"nodes_rooted"`
}
