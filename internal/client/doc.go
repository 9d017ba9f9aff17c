// Package client implements the observer side of the MOTHER gateway
// protocol.
//
// # Overview
//
// An observer connects to the gateway's /ws endpoint, sends commands, and
// receives pushed events. This package provides the websocket Client and
// the State projection that rebuilds gateway state from those pushes.
//
// # Projection
//
// The gateway never serves state snapshots beyond the initial roster frame;
// observers fold every pushed event into their own State. Two observers
// never share a State, and a reconnect starts from a fresh one.
//
// # Debug Mode
//
// The gateway broadcasts all conversation traffic, private conversations
// included. State.Visible applies the client-side boundary: with debug mode
// off, private traffic is withheld from display.
package client
