// Package soap implements the SOAP 1.2 message layer for the organization
// service: envelope construction with WS-Addressing headers, the
// WS-SecureConversation security header, WS-Trust negotiation bodies, fault
// decoding and the Execute request/response codec.
//
// # Subpackages
//
//   - transport: HTTP/TLS transport layer
//
// # Wire format
//
// Envelopes are written as a single UTF-8 document without a byte-order mark,
// without an XML declaration and without indentation. The servers compare
// signed fragments byte for byte, so the codec never pretty-prints.
//
// # Payloads
//
// Request and response bodies are restricted to a closed set of known
// subtypes (CreateRequest, RetrieveRequest, ...). Values inside parameter
// collections are limited to the types listed on Parameters. Anything else
// fails with a *SerializationError instead of being dropped.
package soap
