// Package domain defines the normalized marketing records a brain cycle
// reads (channels, campaigns, creatives, daily metrics and cohorts), the
// in-memory Dataset they are loaded into, and the error kinds shared by
// every stage of the cycle.
//
// Records are written by the sync layer and are read-only here.
package domain
