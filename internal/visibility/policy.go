// ABOUTME: Visibility policy resolving which version of a message a viewer sees
// ABOUTME: Pure function over (message, viewer, conversation mode), no I/O

package visibility

import (
	"github.com/2389/relay-gateway/internal/store"
)

// DisplayedContent is the single content view a viewer is shown for a
// message. Exactly one Body is produced per (message, viewer, mode) input.
type DisplayedContent struct {
	Body string

	// Composite is set in assisted mode when a mediator summary exists;
	// Original and Mediated then carry the two labeled parts.
	Composite bool
	Original  string
	Mediated  string
}

// Resolve determines the content displayed to viewerID for msg under the
// given conversation mode. viewerID may be empty (anonymous or
// unauthenticated caller). Pure and deterministic; safe to call on every
// render.
//
// Priority order, first match wins:
//
//  1. direct: raw, always. Direct conversations have no intermediary, so any
//     processed content is ignored.
//  2. assisted: raw plus the labeled mediator summary when one exists,
//     otherwise raw alone.
//  3. anonymous: raw for viewers on the explicit allow-list; otherwise the
//     processed content when present; otherwise raw. The final fallback is
//     deliberate fail-open during processing lag - anonymous mode hides
//     sender identity and tone, not message existence.
func Resolve(msg *store.Message, viewerID string, mode store.ConversationMode) DisplayedContent {
	switch mode {
	case store.ModeDirect:
		return DisplayedContent{Body: msg.Raw}

	case store.ModeAssisted:
		if msg.Processed == nil {
			return DisplayedContent{Body: msg.Raw}
		}
		return DisplayedContent{
			Body:      "Original:\n" + msg.Raw + "\n\nMediator summary:\n" + *msg.Processed,
			Composite: true,
			Original:  msg.Raw,
			Mediated:  *msg.Processed,
		}

	case store.ModeAnonymous:
		if viewerID != "" && canSeeRaw(msg.RawVisibleTo, viewerID) {
			return DisplayedContent{Body: msg.Raw}
		}
		if msg.Processed != nil {
			return DisplayedContent{Body: *msg.Processed}
		}
		return DisplayedContent{Body: msg.Raw}
	}

	// Unknown mode: treat as direct rather than hide content
	return DisplayedContent{Body: msg.Raw}
}

// canSeeRaw reports whether viewerID is on the raw-content allow-list.
// A nil or empty list is identical to "viewer not listed".
func canSeeRaw(rawVisibleTo []string, viewerID string) bool {
	for _, id := range rawVisibleTo {
		if id == viewerID {
			return true
		}
	}
	return false
}
