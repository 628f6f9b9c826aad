// Package api implements the HTTP REST API and WebSocket server of propcore.
//
// This package provides:
//   - REST endpoints for registry objects, their property values and
//     update documents
//   - WebSocket hub that relays core events to subscribed clients
//   - JWT bearer authentication mapped onto object permission managers
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Values
//
// Property values travel in their document encoding: plain JSON for
// numbers, strings, booleans and lists, and "__type" tagged objects for
// dictionaries, ratios, structs, enumerations and binary data. Request
// bodies are decoded with json.Number so integer properties keep their
// integer form.
//
// # Documents
//
// Import and update bodies are JSON or CBOR, chosen by Content-Type. The
// document endpoint honours Accept the same way.
//
// # WebSocket
//
// Clients connect to /api/v1/ws?token=<jwt> and subscribe to object.{id}
// channels. A subscription is accepted only if the token's user may read
// the object.
package api
