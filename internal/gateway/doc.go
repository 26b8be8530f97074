// Package gateway talks to the button bridge: a small local process that owns
// the Bluetooth stack and the button SDK and exposes them over a websocket.
//
// Frames are CBOR maps with integer keys. Requests (list, connect, locate)
// carry an id echoed by the matching response; press frames are unsolicited
// and routed to the listener registered for the button address.
package gateway
