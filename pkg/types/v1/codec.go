package v1

import (
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// reserved keys lifted out of the flat wire object into Entity fields
var (
	idKeys       = []string{"id", "_id"}
	stageKeys    = []string{"status", "stage"}
	createdKeys  = []string{"createdAt", "created"}
	modifiedKeys = []string{"updatedAt", "modified"}
)

// MarshalJSON flattens the payload next to the well known fields, which is
// the shape listing endpoints return.
func (e Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Payload)+4)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["id"] = e.ID
	out["status"] = e.Stage
	if !e.Created.IsZero() {
		out["createdAt"] = e.Created.UTC().Format(time.RFC3339Nano)
	}
	if e.Modified != nil {
		out["updatedAt"] = e.Modified.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}

func (e *Entity) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var x Entity
	if v, ok := take(raw, idKeys); ok {
		x.ID = ID(scalarString(v))
	}
	if x.ID == "" {
		return fmt.Errorf("entity has no id")
	}
	if v, ok := take(raw, stageKeys); ok {
		x.Stage = Stage(scalarString(v))
	}
	if v, ok := take(raw, createdKeys); ok {
		t, err := parseTime(v)
		if err != nil {
			return fmt.Errorf("entity %s: bad creation time: %w", x.ID, err)
		}
		x.Created = t
	}
	if v, ok := take(raw, modifiedKeys); ok {
		t, err := parseTime(v)
		if err != nil {
			return fmt.Errorf("entity %s: bad modification time: %w", x.ID, err)
		}
		x.Modified = &t
	}
	if len(raw) > 0 {
		x.Payload = raw
	}
	*e = x
	return nil
}

func take(raw map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			for _, kk := range keys {
				delete(raw, kk)
			}
			return v, true
		}
	}
	return nil, false
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case float64:
		// epoch millis
		return time.UnixMilli(int64(t)).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %v", v)
	}
}
