// Package notifier delivers operator messages to a single fixed chat.
//
// Every call is synchronous and reports its outcome as a Delivery, so the
// caller always knows whether a message made it out. Transient failures are
// retried with capped exponential backoff; errors marked permanent by the
// transport end the retry loop at once. A token bucket limiter spaces calls
// to the underlying transport.
//
// # History
//
// For debugging and operator visibility, the service keeps a small in-memory
// history of recent deliveries.
package notifier
