// Package source provides StatusQuerier implementations that read entity
// status straight from a backing store instead of the REST endpoint.
package source

import (
	"github.com/illmade-knight/go-livestatus/pkg/livestatus"
)

var (
	_ livestatus.StatusQuerier = (*RedisStatusSource)(nil)
	_ livestatus.StatusQuerier = (*FirestoreStatusSource)(nil)
)
