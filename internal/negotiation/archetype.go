package negotiation

import (
	"fmt"
	"sort"
	"strings"
)

// Archetype selects the simulated counterparty's persona.
type Archetype string

const (
	AggressiveCorporate Archetype = "aggressive_corporate"
	SmallLandlord       Archetype = "small_landlord"
	MNCStandard         Archetype = "mnc_standard"
	CooperativeEmployer Archetype = "cooperative_employer"
	BankLoanOfficer     Archetype = "bank_loan_officer"
)

var personas = map[Archetype]string{
	AggressiveCorporate: "You are an aggressive corporate legal team. You push back hard on every change. " +
		"You use intimidation tactics like 'this is standard' and 'take it or leave it'. " +
		"You only concede if the other side makes strong legal arguments.",
	SmallLandlord: "You are a small-town landlord who follows custom and tradition, not law. " +
		"You are suspicious of legal language and respond emotionally. " +
		"You might agree if the argument is fair and simple.",
	MNCStandard: "You represent a multinational with templated contracts. You often say 'our legal team has approved this'. " +
		"You are polite but firm and concede only on non-core clauses.",
	CooperativeEmployer: "You are a small business owner who genuinely wants a fair deal. " +
		"You are open to negotiation but worry about your own interests too.",
	BankLoanOfficer: "You are a bank officer bound by RBI guidelines. You are formal and cite internal policy. " +
		"You can concede on timelines but not on core terms.",
}

// Archetypes returns every archetype in name order.
func Archetypes() []Archetype {
	out := make([]Archetype, 0, len(personas))
	for a := range personas {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Valid reports whether a is a known archetype.
func (a Archetype) Valid() bool {
	_, ok := personas[a]
	return ok
}

// Persona is the system prompt text conditioning the counterparty.
func (a Archetype) Persona() string { return personas[a] }

// ParseArchetype validates an archetype name.
func ParseArchetype(s string) (Archetype, error) {
	a := Archetype(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: unknown archetype %q", ErrInvalidRequest, s)
	}
	return a, nil
}
