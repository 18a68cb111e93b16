package listener

import "fmt"

// AcknowledgeMode selects when a consumed message counts as processed.
// The zero value means "not selected" and leaves the factory default alone.
type AcknowledgeMode string

const (
	// AckModeTransacted acknowledges through the session transaction.
	AckModeTransacted AcknowledgeMode = "transacted"
	// AckModeAuto acknowledges automatically after successful handling.
	AckModeAuto AcknowledgeMode = "auto"
	// AckModeClient leaves acknowledgment to the message handler.
	AckModeClient AcknowledgeMode = "client"
	// AckModeDupsOk acknowledges lazily, allowing duplicate delivery.
	AckModeDupsOk AcknowledgeMode = "dups_ok"
)

// Session acknowledge codes set on the container factory.
const (
	SessionTransacted = 0
	AutoAcknowledge   = 1
	ClientAcknowledge = 2
	DupsOkAcknowledge = 3
)

// ParseAcknowledgeMode converts a textual mode selection into an
// AcknowledgeMode. The empty string is a valid "no selection".
func ParseAcknowledgeMode(s string) (AcknowledgeMode, error) {
	switch AcknowledgeMode(s) {
	case "", AckModeTransacted, AckModeAuto, AckModeClient, AckModeDupsOk:
		return AcknowledgeMode(s), nil
	}
	return "", fmt.Errorf("%w: unknown acknowledge mode %q", ErrInvalidArgument, s)
}

// Valid reports whether the mode is one of the known selections or unset.
func (m AcknowledgeMode) Valid() bool {
	_, err := ParseAcknowledgeMode(string(m))
	return err == nil
}

// Code returns the numeric session acknowledge code for the mode.
// Unset or unknown modes map to AutoAcknowledge.
func (m AcknowledgeMode) Code() int {
	switch m {
	case AckModeTransacted:
		return SessionTransacted
	case AckModeClient:
		return ClientAcknowledge
	case AckModeDupsOk:
		return DupsOkAcknowledge
	default:
		return AutoAcknowledge
	}
}

func (m AcknowledgeMode) String() string {
	if m == "" {
		return "unset"
	}
	return string(m)
}
