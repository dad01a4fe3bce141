// Package twilio integrates the gateway with the SMS provider.
//
// # Components
//
//   - Verifier: validates inbound webhook signatures. The provider signs the
//     exact request URL plus the sorted form parameters with HMAC-SHA1 over
//     the shared auth token. Verification is a hard gate: a request that
//     fails it is rejected with 403 before any state mutation.
//
//   - TwiML rendering: EmptyResponse and MessageResponse produce the XML
//     acknowledgement payloads the provider expects. All interpolated text
//     goes through encoding/xml escaping, so user content can never inject
//     markup into the response.
//
//   - Client: outbound sends through the Messages REST API. Form-encoded
//     POST with basic auth and a bounded timeout. The client reports an
//     explicit success or failure per send; the notification dispatcher only
//     logs a send after success.
//
// # Signature verification
//
// Verification is order-independent with respect to form-field order in the
// body: the signature string is built from parameters sorted by key, so two
// encodings of the same fields verify identically.
package twilio
