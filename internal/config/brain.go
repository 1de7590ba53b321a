package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ignite/perf-brain/internal/engine/curiosity"
	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/engine/memory"
	"github.com/ignite/perf-brain/internal/engine/oracle"
)

// BrainConfig is every tunable that affects a cycle's output. A copy and
// its fingerprint are recorded on each BrainState so a snapshot can be
// reproduced later.
type BrainConfig struct {
	Memory    memory.Params    `yaml:"memory" json:"memory"`
	Oracle    oracle.Params    `yaml:"oracle" json:"oracle"`
	Curiosity curiosity.Params `yaml:"curiosity" json:"curiosity"`
	Face      face.Params      `yaml:"face" json:"face"`

	// Data older than this marks the snapshot stale.
	StaleAfterHours     int `yaml:"stale_after_hours" json:"stale_after_hours" validate:"min=1"`
	CycleTimeoutSeconds int `yaml:"cycle_timeout_seconds" json:"cycle_timeout_seconds" validate:"min=1"`
	// Persisting the snapshot runs after compute under its own deadline.
	PersistTimeoutSeconds int `yaml:"persist_timeout_seconds" json:"persist_timeout_seconds" validate:"min=1"`
}

func DefaultBrainConfig() BrainConfig {
	return BrainConfig{
		Memory:                memory.DefaultParams(),
		Oracle:                oracle.DefaultParams(),
		Curiosity:             curiosity.DefaultParams(),
		Face:                  face.DefaultParams(),
		StaleAfterHours:       48,
		CycleTimeoutSeconds:   120,
		PersistTimeoutSeconds: 30,
	}
}

func (b BrainConfig) StaleAfter() time.Duration {
	return time.Duration(b.StaleAfterHours) * time.Hour
}

func (b BrainConfig) CycleTimeout() time.Duration {
	return time.Duration(b.CycleTimeoutSeconds) * time.Second
}

func (b BrainConfig) PersistTimeout() time.Duration {
	return time.Duration(b.PersistTimeoutSeconds) * time.Second
}

// LoadDays is the number of days of metrics a cycle must read to cover
// the longest window any stage looks at.
func (b BrainConfig) LoadDays() int {
	return max(
		b.Memory.LookbackDays,
		b.Oracle.ROIDecay.BaselineDays+b.Oracle.ROIDecay.CurrentDays,
		2*b.Oracle.Fatigue.WindowDays,
	)
}

// JSON is the canonical encoding of the configuration.
func (b BrainConfig) JSON() json.RawMessage {
	// Every field is a plain number or string; Marshal cannot fail.
	data, _ := json.Marshal(b)
	return data
}

// Fingerprint identifies the configuration version: the first 12 hex
// digits of the SHA-256 of its canonical JSON.
func (b BrainConfig) Fingerprint() string {
	sum := sha256.Sum256(b.JSON())
	return hex.EncodeToString(sum[:])[:12]
}
