// ABOUTME: Package doc for the gateway HTTP surface
// ABOUTME: Describes the webhook routes and their failure semantics

// Package gateway wires the relay's HTTP surface: the inbound SMS webhook,
// the message event hook, and the health check.
//
// The inbound SMS route authenticates the provider signature before reading
// anything else; a bad signature is the only path that returns a non-2xx to
// the provider for a well-formed request. Past authentication, every outcome
// answers 200 with TwiML, because a retried webhook would duplicate a message
// we may already have stored.
package gateway
