// Package reviewer defines the adapter boundary to external code-review
// workers. The review analysis itself is opaque: an adapter hands a file
// set to a worker and normalizes whatever comes back into a tagged
// ReviewerOutcome (success, timeout, or error).
package reviewer

import (
	"context"
	"time"

	"github.com/spf13/viper"

	"github.com/joescharf/rc/internal/models"
)

// DefaultTimeout is the per-reviewer budget when none is configured.
const DefaultTimeout = 300 * time.Second

// Adapter invokes one external review worker.
type Adapter interface {
	// ID identifies the reviewer in outcomes and consolidated sources.
	ID() string

	// Invoke reviews the given files and returns the raw issues found.
	// Implementations honor ctx cancellation; the orchestrator races
	// Invoke against the reviewer timeout. Returned issues carry the
	// adapter's reviewer ID.
	Invoke(ctx context.Context, files []string) ([]models.Issue, error)
}

// Config holds adapter-level settings.
type Config struct {
	Timeout time.Duration
}

// DefaultConfig returns adapter settings, reading from viper when
// available.
func DefaultConfig() Config {
	ms := viper.GetInt64("reviewer.timeout_ms")
	if ms <= 0 {
		return Config{Timeout: DefaultTimeout}
	}
	return Config{Timeout: time.Duration(ms) * time.Millisecond}
}
