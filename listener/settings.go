package listener

import (
	"fmt"
	"strconv"
)

// ListenerSettings is a read-only snapshot of externally bound listener
// configuration. How the values get here (files, environment, flags) is the
// caller's concern; the configurer only reads them.
type ListenerSettings struct {
	// PubSubDomain selects publish/subscribe destinations instead of
	// point-to-point queues.
	PubSubDomain bool

	// AutoStartup starts containers as soon as the client starts.
	AutoStartup bool

	// AcknowledgeMode overrides the factory acknowledge mode when set.
	AcknowledgeMode AcknowledgeMode

	// Concurrency is the lower bound of concurrent consumers. Zero means
	// unset.
	Concurrency int

	// MaxConcurrency is the upper bound of concurrent consumers. Zero means
	// unset.
	MaxConcurrency int
}

// DefaultListenerSettings returns the settings applied when nothing is bound
// externally: auto-startup on, everything else left to factory defaults.
func DefaultListenerSettings() *ListenerSettings {
	return &ListenerSettings{
		AutoStartup: true,
	}
}

// FormatConcurrency renders the consumer range as a concurrency
// specification: "min-max" when both bounds are set, "min" when only the
// lower bound is set, "1-max" when only the upper bound is set, and the
// empty string when neither is.
func (s *ListenerSettings) FormatConcurrency() string {
	if s.Concurrency <= 0 {
		if s.MaxConcurrency > 0 {
			return "1-" + strconv.Itoa(s.MaxConcurrency)
		}
		return ""
	}
	if s.MaxConcurrency > 0 {
		return fmt.Sprintf("%d-%d", s.Concurrency, s.MaxConcurrency)
	}
	return strconv.Itoa(s.Concurrency)
}
