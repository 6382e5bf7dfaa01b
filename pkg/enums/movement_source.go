package enums

import "fmt"

// MovementSource records who produced a stock movement.
type MovementSource string

const (
	MovementSourceExternalOrder MovementSource = "external_order"
	MovementSourceManual        MovementSource = "manual"
)

var validMovementSources = []MovementSource{
	MovementSourceExternalOrder,
	MovementSourceManual,
}

// IsValid reports whether the value matches a known movement source.
func (s MovementSource) IsValid() bool {
	for _, candidate := range validMovementSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseMovementSource converts raw input into MovementSource.
func ParseMovementSource(value string) (MovementSource, error) {
	for _, candidate := range validMovementSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement source %q", value)
}
