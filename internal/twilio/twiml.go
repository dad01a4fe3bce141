// ABOUTME: TwiML response rendering for webhook acknowledgements
// ABOUTME: All interpolated text is XML-entity-escaped via encoding/xml

package twilio

import (
	"encoding/xml"
)

// ContentTypeXML is the Content-Type for TwiML responses.
const ContentTypeXML = "text/xml; charset=utf-8"

// xmlHeader matches the declaration Twilio documents for TwiML, without the
// trailing newline xml.Header carries.
const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>`

// twimlResponse is the root TwiML element. An empty Message is omitted,
// producing the bare acknowledgement <Response></Response>.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// EmptyResponse renders the minimal acknowledgement payload. Every gateway
// termination path (signature failure aside) returns well-formed TwiML so the
// provider does not retry spuriously.
func EmptyResponse() string {
	return xmlHeader + `<Response></Response>`
}

// MessageResponse renders an acknowledgement carrying a reply message. The
// text is escaped, never interpolated as markup.
func MessageResponse(text string) string {
	if text == "" {
		return EmptyResponse()
	}
	data, err := xml.Marshal(twimlResponse{Message: text})
	if err != nil {
		// Marshal of this struct cannot fail on any string input; fall back
		// to the empty acknowledgement rather than returning malformed XML.
		return EmptyResponse()
	}
	return xmlHeader + string(data)
}
