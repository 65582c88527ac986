package valueobject

import "fmt"

// SourceType records where a raw product batch came from. It is immutable
// after job creation.
type SourceType string

// Source type constants.
const (
	SourceTypeCSV     SourceType = "csv"
	SourceTypeJSON    SourceType = "json"
	SourceTypeWebhook SourceType = "webhook"
	SourceTypePull    SourceType = "pull"
)

// validSourceTypes contains all valid source types.
var validSourceTypes = map[SourceType]bool{
	SourceTypeCSV:     true,
	SourceTypeJSON:    true,
	SourceTypeWebhook: true,
	SourceTypePull:    true,
}

// NewSourceType creates a new SourceType with validation.
func NewSourceType(sourceType string) (SourceType, error) {
	s := SourceType(sourceType)
	if !validSourceTypes[s] {
		return "", fmt.Errorf("invalid source type: %s", sourceType)
	}
	return s, nil
}

// String returns the string representation of the source type.
func (s SourceType) String() string {
	return string(s)
}

// IsTabular returns true if the raw payload for this source type is CSV.
// Webhook and pull sources deliver JSON payloads.
func (s SourceType) IsTabular() bool {
	return s == SourceTypeCSV
}
