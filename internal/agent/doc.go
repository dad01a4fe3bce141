// Package agent generates the automated participant's replies.
//
// # Responder
//
// The Responder assembles bounded conversation context (the most recent N
// messages, rendered chronologically as "{speaker}: {text}" lines) and asks
// an OpenAI-compatible completion API for a reply sized for SMS delivery.
//
// Failure never propagates to the SMS sender: any model error, timeout, or
// empty response degrades to the persona's fixed fallback apology.
//
// # Persona
//
// The persona TOML file defines the agent's name and aliases (consumed by
// the mention detector) and its prompt strings. ${VAR} references in the
// file are expanded from the environment before parsing.
package agent
