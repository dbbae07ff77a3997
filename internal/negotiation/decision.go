package negotiation

import (
	"strings"

	"github.com/ericksa/contractlens/internal/llm"
)

// Decision is the classified intent of one negotiation reply.
type Decision string

const (
	// Counterparty decisions.
	DecisionAgreed  Decision = "AGREED"
	DecisionCounter Decision = "COUNTER"
	DecisionRefused Decision = "REFUSED"

	// Advocate decisions.
	DecisionAccept   Decision = "ACCEPT"
	DecisionPushback Decision = "PUSHBACK"

	DecisionUnparseable Decision = ""
)

var (
	counterpartyDecisions = []Decision{DecisionAgreed, DecisionCounter, DecisionRefused}
	advocateDecisions     = []Decision{DecisionAccept, DecisionPushback}
)

type counterpartyReply struct {
	Decision     string `json:"decision" jsonschema:"enum=AGREED,enum=COUNTER,enum=REFUSED"`
	Message      string `json:"message" jsonschema:"description=What you say to the other side in 2-3 sentences"`
	ProposedText string `json:"proposedText" jsonschema:"description=Full clause text you propose or agree to; empty when refusing"`
}

type advocateReply struct {
	Decision     string `json:"decision" jsonschema:"enum=ACCEPT,enum=PUSHBACK"`
	Message      string `json:"message" jsonschema:"description=What you say to the counterparty in 2-3 sentences"`
	ProposedText string `json:"proposedText" jsonschema:"description=Your revised clause text when pushing back; otherwise empty"`
}

var (
	counterpartySchema = llm.SchemaFor[counterpartyReply]("counterparty_decision", "Counterparty response to a proposed clause revision")
	advocateSchema     = llm.SchemaFor[advocateReply]("advocate_decision", "Advocate evaluation of a counter-proposal")
)

// classified is a reply reduced to its decision and content.
type classified struct {
	Decision     Decision
	Message      string
	ProposedText string
}

// classify reads the structured reply first and falls back to a leading
// "DECISION:" token. Anything else is DecisionUnparseable.
func classify(text string, allowed []Decision) classified {
	payload := llm.Normalize(text, llm.KindObject)
	var reply counterpartyReply
	if payload.Decode(&reply) == nil {
		if d, ok := match(reply.Decision, allowed); ok {
			return classified{
				Decision:     d,
				Message:      strings.TrimSpace(reply.Message),
				ProposedText: strings.TrimSpace(reply.ProposedText),
			}
		}
	}

	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)
	for _, d := range allowed {
		prefix := string(d) + ":"
		if strings.HasPrefix(upper, prefix) {
			rest := strings.TrimSpace(trimmed[len(prefix):])
			return classified{Decision: d, Message: rest, ProposedText: rest}
		}
	}
	return classified{Decision: DecisionUnparseable, Message: trimmed}
}

func match(s string, allowed []Decision) (Decision, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, d := range allowed {
		if s == string(d) {
			return d, true
		}
	}
	return DecisionUnparseable, false
}

// render writes a classified reply back in prefix form for the
// conversation history.
func (c classified) render() string {
	var b strings.Builder
	b.WriteString(string(c.Decision))
	b.WriteString(": ")
	b.WriteString(c.Message)
	if c.ProposedText != "" && c.ProposedText != c.Message {
		b.WriteString("\nProposed text: \"")
		b.WriteString(c.ProposedText)
		b.WriteString("\"")
	}
	return b.String()
}
