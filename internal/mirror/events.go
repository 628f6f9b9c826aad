package mirror

import (
	"time"

	"github.com/nerrad567/propcore/internal/property"
)

// Event is the JSON form of a core event as published on MQTT and
// broadcast to WebSocket clients. Values use the document encoding.
type Event struct {
	ObjectID  string         `json:"object_id"`
	ClassName string         `json:"class_name,omitempty"`
	Event     string         `json:"event"`
	Path      string         `json:"path,omitempty"`
	Name      string         `json:"name,omitempty"`
	Value     any            `json:"value,omitempty"`
	Changes   map[string]any `json:"changes,omitempty"`
	Order     []string       `json:"order,omitempty"`
	Time      time.Time      `json:"time"`
}

// newEvent lowers a core event. Values without a document encoding are
// left out rather than dropping the event.
func newEvent(objectID, className string, ev property.CoreEvent, at time.Time) Event {
	out := Event{
		ObjectID:  objectID,
		ClassName: className,
		Event:     ev.ID.String(),
		Path:      ev.Path,
		Name:      ev.Name,
		Order:     ev.Order,
		Time:      at,
	}
	switch ev.ID {
	case property.CorePropertyValueChanged:
		out.Value = encodeOrNil(ev.Value)
	case property.CoreUpdateEnd:
		if ev.Changes != nil {
			out.Changes = make(map[string]any, ev.Changes.Len())
			ev.Changes.Range(func(k, v any) bool {
				if name, ok := k.(string); ok {
					out.Changes[name] = encodeOrNil(v)
				}
				return true
			})
		}
	}
	return out
}

func encodeOrNil(v any) any {
	enc, err := property.EncodeValue(v)
	if err != nil {
		return nil
	}
	return enc
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
