/*
Package wspool is a set of websocket connection pooling and streaming
decode libraries.

Doing the heavy lifting of connection establishment (racing the open,
error, close and cancellation signals), per-session connection reuse
with idle expiry, and ordered decoding of inbound frames up to a
protocol completion marker, these libraries allow request/response
applications to ride a persistent bidirectional socket without paying
connection setup cost on every call.

A Pool hands out at most one cached connection per session identifier
at a time; overlapping calls for a busy session receive an independent,
unpooled connection rather than queueing. The stream package turns a
connection's raw event sequence into a cancellable, ordered sequence of
decoded messages that terminates exactly at the completion marker.

See the pool and stream sub-directories for the acquisition and
decoding surfaces, and gorillaws for the concrete transport.
*/
package wspool
