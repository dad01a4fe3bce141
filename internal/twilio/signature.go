// ABOUTME: Webhook signature verification for inbound Twilio requests
// ABOUTME: HMAC-SHA1 over the request URL plus sorted form parameters

package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
)

// SignatureHeader is the HTTP header carrying the provider signature.
const SignatureHeader = "X-Twilio-Signature"

// Verifier validates that inbound webhook requests were signed with the
// shared auth token. Webhooks are reachable from the public internet;
// without this check an attacker can inject arbitrary messages, trigger
// agent replies, and run up outbound SMS billing.
type Verifier struct {
	authToken string
}

// NewVerifier creates a Verifier for the given auth token.
func NewVerifier(authToken string) *Verifier {
	return &Verifier{authToken: authToken}
}

// Signature computes the expected signature for a request: the exact URL the
// provider invoked, followed by each form key+value concatenated in
// lexicographic key order, HMAC-SHA1 signed and base64 encoded.
func (v *Verifier) Signature(requestURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(v.authToken))
	mac.Write([]byte(requestURL))
	for _, k := range keys {
		for _, val := range params[k] {
			mac.Write([]byte(k))
			mac.Write([]byte(val))
		}
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a raw form-encoded body against the signature header using a
// constant-time comparison. Any parse failure, missing header, or mismatch
// rejects the request; callers must respond 403 and perform no further
// processing.
func (v *Verifier) Verify(requestURL, rawBody, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}
	params, err := url.ParseQuery(rawBody)
	if err != nil {
		return false
	}
	expected := v.Signature(requestURL, params)
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}
