// Package negotiation simulates a bounded negotiation over one risky
// clause between the user's advocate and a persona-driven counterparty.
package negotiation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ericksa/contractlens/internal/analysis"
	"github.com/ericksa/contractlens/internal/llm"
	"github.com/ericksa/contractlens/internal/logging"
)

const (
	DefaultMaxRounds = 3
	MaxRoundsCap     = 10

	counterpartyTemperature = 0.7
	advocateTemperature     = 0.4
)

// ErrInvalidRequest marks a malformed negotiation request.
var ErrInvalidRequest = fmt.Errorf("negotiation: %w", analysis.ErrInvalidInput)

// Party is who spoke a turn.
type Party string

const (
	PartyUser         Party = "user"
	PartyCounterparty Party = "counterparty"
)

// Outcome is how a negotiation ended.
type Outcome string

const (
	OutcomeAgreed      Outcome = "agreed"
	OutcomeAccepted    Outcome = "accepted"
	OutcomeRefused     Outcome = "refused"
	OutcomeExhausted   Outcome = "exhausted"
	OutcomeUnparseable Outcome = "unparseable"
)

// User-facing outcome descriptions.
const (
	GainFull       = "Full revision accepted"
	GainPartial    = "Partial revision accepted, better than original"
	GainRefused    = "Could not change this clause; consider rejecting the contract"
	GainNone       = "No change achieved"
	GainUnreadable = "Negotiation stopped: a reply could not be understood"
)

// Turn is one message in the negotiation.
type Turn struct {
	Party        Party  `json:"party" yaml:"party"`
	Message      string `json:"message" yaml:"message"`
	ProposedText string `json:"proposedText,omitempty" yaml:"proposedText,omitempty"`
}

// Request is one negotiation to simulate.
type Request struct {
	Clause    analysis.RiskedClause
	Archetype Archetype
	// MaxRounds defaults to DefaultMaxRounds and is capped at MaxRoundsCap.
	MaxRounds int
}

// Result is the outcome of a simulation.
type Result struct {
	Clause          analysis.RiskedClause `json:"clause" yaml:"clause"`
	Turns           []Turn                `json:"turns" yaml:"turns"`
	FinalAgreedText string                `json:"finalAgreedText" yaml:"finalAgreedText"`
	WasResolved     bool                  `json:"wasResolved" yaml:"wasResolved"`
	UserGain        string                `json:"userGain" yaml:"userGain"`
	Outcome         Outcome               `json:"outcome" yaml:"outcome"`
	Rounds          int                   `json:"rounds" yaml:"rounds"`
}

// Simulator runs negotiations. It keeps no state between calls.
type Simulator struct {
	gw     llm.Gateway
	model  string
	logger *zap.Logger
}

func NewSimulator(gw llm.Gateway, model string, logger *zap.Logger) *Simulator {
	return &Simulator{gw: gw, model: model, logger: logging.OrNop(logger).Named("negotiation")}
}

// run is the mutable state of one negotiation.
type run struct {
	req     Request
	history []llm.Message
	result  Result
}

// Negotiate opens with the clause's redline and alternates counterparty and
// advocate replies for at most MaxRounds rounds. Gateway failures abort the
// run with an error and no partial result.
func (s *Simulator) Negotiate(ctx context.Context, req Request) (Result, error) {
	if err := normalize(&req); err != nil {
		return Result{}, err
	}

	r := &run{
		req:      req,
		result: Result{
			Clause:          req.Clause,
			FinalAgreedText: req.Clause.OriginalText,
			UserGain:        GainNone,
			Outcome:         OutcomeExhausted,
		},
	}

	opening := openingMove(req.Clause)
	r.addTurn(PartyUser, opening, req.Clause.RedlinedEdit, llm.RoleUser, opening)

	for round := 1; round <= req.MaxRounds; round++ {
		r.result.Rounds = round

		done, err := s.round(ctx, r)
		if err != nil {
			return Result{}, fmt.Errorf("negotiation round %d: %w", round, err)
		}
		if done {
			break
		}
	}

	s.logger.Info("negotiation finished",
		zap.String("clause", req.Clause.ID),
		zap.String("archetype", string(req.Archetype)),
		zap.String("outcome", string(r.result.Outcome)),
		zap.Int("rounds", r.result.Rounds),
		zap.Bool("resolved", r.result.WasResolved),
	)
	return r.result, nil
}

// round plays one counterparty reply and, on a counter-proposal, the
// advocate's evaluation. It reports whether the negotiation ended.
func (s *Simulator) round(ctx context.Context, r *run) (bool, error) {
	counter, raw, err := s.ask(ctx, r, counterpartyPrompt(r.req.Archetype), counterpartyTemperature, counterpartySchema, counterpartyDecisions)
	if err != nil {
		return true, err
	}

	switch counter.Decision {
	case DecisionAgreed:
		r.addTurn(PartyCounterparty, counter.Message, r.req.Clause.RedlinedEdit, llm.RoleAssistant, counter.render())
		r.finish(OutcomeAgreed, true, r.req.Clause.RedlinedEdit, GainFull)
		return true, nil

	case DecisionRefused:
		r.addTurn(PartyCounterparty, counter.Message, "", llm.RoleAssistant, counter.render())
		r.finish(OutcomeRefused, false, r.req.Clause.OriginalText, GainRefused)
		return true, nil

	case DecisionCounter:
		counterText := counter.ProposedText
		if counterText == "" {
			counterText = counter.Message
		}
		counter.ProposedText = counterText
		r.addTurn(PartyCounterparty, counter.Message, counterText, llm.RoleAssistant, counter.render())

		reply, rawReply, err := s.ask(ctx, r, advocatePrompt, advocateTemperature, advocateSchema, advocateDecisions)
		if err != nil {
			return true, err
		}
		switch reply.Decision {
		case DecisionAccept:
			r.addTurn(PartyUser, reply.Message, "", llm.RoleUser, reply.render())
			r.finish(OutcomeAccepted, true, counterText, GainPartial)
			return true, nil
		case DecisionPushback:
			r.addTurn(PartyUser, reply.Message, reply.ProposedText, llm.RoleUser, reply.render())
			return false, nil
		default:
			r.addTurn(PartyUser, rawReply, "", llm.RoleUser, rawReply)
			s.logger.Warn("advocate reply unparseable", zap.String("clause", r.req.Clause.ID))
			r.finish(OutcomeUnparseable, false, r.req.Clause.OriginalText, GainUnreadable)
			return true, nil
		}

	default:
		r.addTurn(PartyCounterparty, raw, "", llm.RoleAssistant, raw)
		s.logger.Warn("counterparty reply unparseable", zap.String("clause", r.req.Clause.ID))
		r.finish(OutcomeUnparseable, false, r.req.Clause.OriginalText, GainUnreadable)
		return true, nil
	}
}

func (s *Simulator) ask(ctx context.Context, r *run, system string, temperature float64, schema *llm.Schema, allowed []Decision) (classified, string, error) {
	messages := make([]llm.Message, 0, len(r.history)+1)
	messages = append(messages, llm.System(system))
	messages = append(messages, r.history...)

	resp, err := s.gw.Complete(ctx, llm.Request{
		Model:       s.model,
		Messages:    messages,
		Temperature: temperature,
		JSON:        true,
		Schema:      schema,
		MaxTokens:   1024,
	})
	if err != nil {
		return classified{}, "", err
	}
	raw := strings.TrimSpace(resp.Text)
	return classify(raw, allowed), raw, nil
}

func (r *run) addTurn(party Party, message, proposed string, role llm.Role, historyText string) {
	r.result.Turns = append(r.result.Turns, Turn{Party: party, Message: message, ProposedText: proposed})
	r.history = append(r.history, llm.Message{Role: role, Content: historyText})
}

func (r *run) finish(outcome Outcome, resolved bool, text, gain string) {
	r.result.Outcome = outcome
	r.result.WasResolved = resolved
	r.result.FinalAgreedText = text
	r.result.UserGain = gain
}

func normalize(req *Request) error {
	if strings.TrimSpace(req.Clause.OriginalText) == "" {
		return fmt.Errorf("%w: clause text is empty", ErrInvalidRequest)
	}
	if !req.Archetype.Valid() {
		return fmt.Errorf("%w: unknown archetype %q", ErrInvalidRequest, req.Archetype)
	}
	if req.MaxRounds < 0 {
		return fmt.Errorf("%w: maxRounds must not be negative", ErrInvalidRequest)
	}
	if req.MaxRounds == 0 {
		req.MaxRounds = DefaultMaxRounds
	}
	if req.MaxRounds > MaxRoundsCap {
		req.MaxRounds = MaxRoundsCap
	}
	if strings.TrimSpace(req.Clause.RedlinedEdit) == "" {
		req.Clause.RedlinedEdit = req.Clause.OriginalText
	}
	return nil
}

func openingMove(c analysis.RiskedClause) string {
	citation := c.LegalCitation
	if citation == "" {
		citation = "N/A"
	}
	return fmt.Sprintf("I want to modify this clause: \"%s\"\n\nMy proposed revision: \"%s\"\n\nReason: %s. This is supported by %s.",
		c.OriginalText, c.RedlinedEdit, strings.TrimRight(c.Explanation, "."), citation)
}

func counterpartyPrompt(a Archetype) string {
	return a.Persona() + `

You are negotiating a contract clause.
Reply with a decision:
- AGREED: you accept the proposed revision as written.
- COUNTER: you offer alternative text; put the full clause text in proposedText.
- REFUSED: you will not change the clause; explain why.
Keep the message short, 2-3 sentences at most.
If you cannot reply in JSON, start your reply with "AGREED:", "COUNTER:" or "REFUSED:".`
}

const advocatePrompt = `You are a legal advocate for a common person in India.
Evaluate whether the counterparty's proposal is acceptable or push back further.
Prioritize the user's protection. Be firm but reasonable.
Reply with a decision:
- ACCEPT: the counter-proposal is acceptable.
- PUSHBACK: it is not; give your counter and put your revised clause text in proposedText.
Keep the message to 2-3 sentences.
If you cannot reply in JSON, start your reply with "ACCEPT:" or "PUSHBACK:".`
