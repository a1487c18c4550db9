package types

import (
	"strconv"
	"time"
)

// Status is the live state of a single broadcast entity as reported by the status endpoint.
type Status struct {
	Ended   bool `json:"ended"`
	Viewers int  `json:"viewers"`
}

// ParseEntityID converts a registry key into the numeric id sent to the status endpoint.
// Only canonical, positive base-10 integers are accepted, so "42" is valid while
// "042", "-1", "0" and "abc" are not.
func ParseEntityID(key string) (int64, bool) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	if strconv.FormatInt(id, 10) != key {
		return 0, false
	}
	return id, true
}

// EntityKey is the registry and response key for a numeric entity id.
func EntityKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// StatusEvent is the payload published downstream whenever a poll delivers a value.
type StatusEvent struct {
	EntityID   int64     `json:"entityId"`
	Status     Status    `json:"status"`
	Available  bool      `json:"available"`
	ObservedAt time.Time `json:"observedAt"`
}

// Observation is a single archived poll result. Field names double as the
// inferred BigQuery schema.
type Observation struct {
	EntityID   int64     `json:"entityId" bigquery:"entity_id"`
	Ended      bool      `json:"ended" bigquery:"ended"`
	Viewers    int       `json:"viewers" bigquery:"viewers"`
	Available  bool      `json:"available" bigquery:"available"`
	ObservedAt time.Time `json:"observedAt" bigquery:"observed_at"`
}

// BatchKey groups observations by UTC day for archive object paths.
func (o *Observation) BatchKey() string {
	return o.ObservedAt.UTC().Format("2006/01/02")
}
