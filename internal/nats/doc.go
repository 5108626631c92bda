// Package nats carries camera frames and commands over an embedded NATS
// server.
//
// Subjects:
//
//	camnode.frames.<node>    raw frames, metadata in Camnode-* headers
//	camnode.state.<node>     lifecycle transitions (JSON)
//	camnode.control.<node>   commands: dump, start, stop (JSON)
//	camnode.events.<kind>    bus events forwarded by Bridge (JSON)
//
// <node> is the base name of the device path, for example video0.
//
// Client degrades to offline mode when no server is reachable: frame
// publishes return ErrNotConnected and the capture loop keeps running.
package nats
