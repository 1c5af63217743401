package kb

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata is an open map of caller-supplied provenance fields. Values
// are restricted to a small closed set of primitive types.
type Metadata map[string]any

// Tracked field names the manager records itself. Caller-supplied
// values never overwrite these.
const (
	fieldSource     = "source"
	fieldTimestamp  = "timestamp"
	fieldPosition   = "position"
	fieldCollection = "collection"
)

// Validate checks that every metadata value is a string, number,
// boolean, or timestamp.
func (m Metadata) Validate() error {
	for key, value := range m {
		if key == "" {
			return fmt.Errorf("metadata key must not be empty")
		}
		switch value.(type) {
		case string, bool,
			int, int32, int64,
			float32, float64,
			time.Time:
			// ok
		default:
			return fmt.Errorf("metadata field %q has unsupported type %T", key, value)
		}
	}
	return nil
}

// chunkMetadata merges caller-supplied metadata with the tracked
// provenance fields for one chunk. Tracked fields win collisions.
// Which tracked fields are recorded is controlled by the metadata
// configuration toggles.
func (m *Manager) chunkMetadata(custom Metadata, source, collection string, seq int, ingestedAt time.Time) string {
	merged := make(map[string]any, len(custom)+4)
	for key, value := range custom {
		if t, ok := value.(time.Time); ok {
			value = t.UTC().Format(time.RFC3339)
		}
		merged[key] = value
	}

	mc := m.cfg.Metadata
	if mc.RecordSource {
		merged[fieldSource] = source
	}
	if mc.RecordTimestamp {
		merged[fieldTimestamp] = ingestedAt.UTC().Format(time.RFC3339)
	}
	if mc.RecordPosition {
		merged[fieldPosition] = seq
	}
	if mc.RecordCollection {
		merged[fieldCollection] = collection
	}

	encoded, err := json.Marshal(merged)
	if err != nil {
		// Validate already rejected non-encodable values.
		return "{}"
	}
	return string(encoded)
}

// decodeMetadata parses a stored metadata JSON object. Corrupt
// metadata degrades to an empty map rather than failing the search.
func decodeMetadata(encoded string) Metadata {
	if encoded == "" {
		return Metadata{}
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(encoded), &decoded); err != nil {
		return Metadata{}
	}
	return decoded
}
