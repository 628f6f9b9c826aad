// Package store keeps the live root property objects of the service and
// their persisted snapshots.
//
// The Registry owns one *property.Object per stored row of the
// property_objects table. Every mutation made through the Registry
// (value writes, clears, update documents, freeze) is persisted as a
// serialized document, encoded with the configured codec, once it has
// taken effect. On startup Load rebuilds the objects from those
// documents against the loaded schema.
//
// Observers (the MQTT mirror, the WebSocket hub) are told when objects
// are added or removed so they can attach to the object's events.
package store
