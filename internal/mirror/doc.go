// Package mirror connects registry objects to the outside world.
//
// Outbound, every core event of a registry object is published as JSON on
// {prefix}/event/{object_id}/{event}, broadcast to WebSocket clients
// subscribed to "object.{object_id}", and, for numeric and boolean
// values, written to InfluxDB as a property_values point. Update-end
// events also write a property_updates point.
//
// Inbound, documents produced by SerializeForUpdate and published on
// {prefix}/update/{object_id} are applied to the matching registry object
// in one update transaction. With AcceptCBOR the payload may be CBOR;
// JSON payloads are recognised by their leading '{'.
//
// The mirror implements store.Observer; register it with
// Registry.AddObserver before Registry.Load.
package mirror
