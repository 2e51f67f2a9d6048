// Package server implements the WebSocket broadcast relay.
//
// A Server accepts upgrades on one path and feeds every connection's
// open, message, close and error events through a single Hub goroutine.
// The Hub hands each event to a Relay, which owns the Registry of
// connections and either answers the sender privately (ping/pong, join
// welcome) or broadcasts the payload to every open connection, sender
// included. On interrupt the server broadcasts "shutdown", waits a fixed
// drain period and aborts.
package server
