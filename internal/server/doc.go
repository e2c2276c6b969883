// Package server implements the HTTP and WebSocket transport of the chat hub.
//
// Each upgraded connection becomes a Client: its read pump submits text frames
// to the hub and its write pump drains what the hub delivers. The package is
// split into files for configuration, clients, origin checks, rate limiting,
// routing, and HTTP handlers.
package server
