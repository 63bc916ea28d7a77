// Package transport provides the HTTP/TLS transport for organization
// service messages.
//
// The transport layer handles:
//   - HTTP/HTTPS connections and TLS configuration
//   - posting SOAP 1.2 envelopes with a per-call deadline
//   - separating connection failures (*Error) from HTTP error statuses
//     (*StatusError), whose bodies are still returned so faults can be decoded
package transport
