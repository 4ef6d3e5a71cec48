/*
Package transport defines the capability surface a socket-like
connection must expose to the rest of the system.

A Transport can send text payloads, close with a status code and
reason, and publish four kinds of events: open, message, error and
close. Nothing else is assumed, which keeps the establishment, pooling
and stream decoding layers independent of any concrete websocket
implementation.

Implementations embed Hub to obtain the listener registry. Subscribers
receive events in dispatch order; a subscription is released through
the cancel function returned by Subscribe.
*/
package transport
