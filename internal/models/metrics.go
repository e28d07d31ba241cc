package models

import "time"

// PipelineMetrics summarises the donation pipeline at one snapshot
type PipelineMetrics struct {
	Timestamp time.Time         `json:"timestamp"`
	Revision  uint64            `json:"revision"`
	Total     int               `json:"total"`
	ByStatus  map[Status]int    `json:"by_status"`
	Unmapped  int               `json:"unmapped"` // records excluded from the map
	Host      map[string]Metric `json:"host,omitempty"`
}

// Metric is one host figure with its unit
type Metric struct {
	Value interface{} `json:"value"`
	Unit  string      `json:"unit"`
}
