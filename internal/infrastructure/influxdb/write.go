package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by this package.
const (
	MeasurementPropertyValues = "property_values"
	MeasurementUpdates        = "property_updates"
)

// PropertySample is one property value observed on a registry object.
type PropertySample struct {
	ObjectID  string
	ClassName string
	Path      string
	Value     any // float64, int64, bool or string
	Time      time.Time
}

// WritePropertyValue records a property value change.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Values of any other type than those listed on PropertySample return
// ErrWriteFailed without writing.
//
// Example:
//
//	client.WritePropertyValue(influxdb.PropertySample{
//	    ObjectID: id, Path: "Channel.Gain", Value: 2.5, Time: time.Now(),
//	})
func (c *Client) WritePropertyValue(s PropertySample) error {
	switch s.Value.(type) {
	case float64, int64, bool, string:
	default:
		return fmt.Errorf("%w: unsupported field type %T for %s", ErrWriteFailed, s.Value, s.Path)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	tags := map[string]string{
		"object_id": s.ObjectID,
		"path":      s.Path,
	}
	if s.ClassName != "" {
		tags["class"] = s.ClassName
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementPropertyValues, tags,
		map[string]interface{}{"value": s.Value}, timestampOrNow(s.Time)))
	return nil
}

// WriteUpdateEnd records the number of properties a transaction changed.
func (c *Client) WriteUpdateEnd(objectID string, changed int, at time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.writeAPI.WritePoint(write.NewPoint(MeasurementUpdates,
		map[string]string{"object_id": objectID},
		map[string]interface{}{"changed": int64(changed)},
		timestampOrNow(at)))
	return nil
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
