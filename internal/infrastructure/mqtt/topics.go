package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when Topics.Prefix is empty.
const DefaultTopicPrefix = "propcore"

// Topics builds the propcore MQTT topic tree:
//
//	{prefix}/system/status                 retained online/offline status
//	{prefix}/event/{object_id}/{event}     core events published by the mirror
//	{prefix}/update/{object_id}            update documents applied to an object
//
// Object ids are registry UUIDs and never contain '/', '+' or '#'.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// SystemStatus returns the retained status topic.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// ObjectEvent returns the topic a core event of one object is published on.
//
// Example: propcore/event/3f0c.../property_value_changed
func (t Topics) ObjectEvent(objectID, event string) string {
	return fmt.Sprintf("%s/event/%s/%s", t.prefix(), objectID, event)
}

// AllObjectEvents matches every core event of every object.
func (t Topics) AllObjectEvents() string {
	return t.prefix() + "/event/+/+"
}

// ObjectUpdate returns the topic remote peers publish update documents on.
func (t Topics) ObjectUpdate(objectID string) string {
	return fmt.Sprintf("%s/update/%s", t.prefix(), objectID)
}

// AllObjectUpdates matches the update topic of every object.
func (t Topics) AllObjectUpdates() string {
	return t.prefix() + "/update/+"
}

// ObjectIDFromUpdateTopic extracts the object id from an update topic.
func (t Topics) ObjectIDFromUpdateTopic(topic string) (string, error) {
	id, ok := strings.CutPrefix(topic, t.prefix()+"/update/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("%w: %q is not an update topic", ErrInvalidTopic, topic)
	}
	return id, nil
}
