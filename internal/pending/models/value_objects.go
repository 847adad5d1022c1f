package models

import (
	"strings"
	"unicode"

	"enrollgate/internal/completeness"
	"enrollgate/internal/platform/privacy"
)

// NationalID is the deduplication key of a pending registration.
type NationalID string

// NormalizeNationalID strips separators and whitespace and uppercases letters,
// so "30.111.222" and "30111222" address the same record.
func NormalizeNationalID(raw string) NationalID {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return NationalID(b.String())
}

func (id NationalID) String() string { return string(id) }

// Suffix is the only part of the identifier written to logs.
func (id NationalID) Suffix() string { return privacy.NationalIDSuffix(string(id)) }

// State is the lifecycle state of a pending registration.
// Transitions are forward only and PROCESADO is terminal.
type State string

const (
	StateNoDocumentation State = "SIN_DOCUMENTACION"
	StateIncomplete      State = "DOCUMENTACION_INCOMPLETA"
	StateProcessed       State = "PROCESADO"
)

var stateRank = map[State]int{
	StateNoDocumentation: 0,
	StateIncomplete:      1,
	StateProcessed:       2,
}

// IsValid checks if the state is one of the supported enum values.
func (s State) IsValid() bool {
	_, ok := stateRank[s]
	return ok
}

// IsTerminal is true for PROCESADO.
func (s State) IsTerminal() bool { return s == StateProcessed }

// Advance returns the later of s and next. A registration never regresses.
func (s State) Advance(next State) State {
	if !s.IsValid() {
		return next
	}
	if !next.IsValid() || stateRank[next] <= stateRank[s] {
		return s
	}
	return next
}

// StateFor maps a completeness status onto the lifecycle.
func StateFor(status completeness.Status) State {
	switch status {
	case completeness.StatusComplete:
		return StateProcessed
	case completeness.StatusPartial:
		return StateIncomplete
	default:
		return StateNoDocumentation
	}
}

// Urgency classifies how close a live registration is to expiring.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// Thresholds in whole days remaining.
const (
	CriticalDays = 1
	UrgentDays   = 3
)

var urgencyRank = map[Urgency]int{
	UrgencyNormal:   0,
	UrgencyUrgent:   1,
	UrgencyCritical: 2,
}

// ClassifyUrgency maps days remaining to an urgency level.
func ClassifyUrgency(daysRemaining int) Urgency {
	switch {
	case daysRemaining <= CriticalDays:
		return UrgencyCritical
	case daysRemaining <= UrgentDays:
		return UrgencyUrgent
	default:
		return UrgencyNormal
	}
}

// IsValid checks if the urgency is one of the supported enum values.
func (u Urgency) IsValid() bool {
	_, ok := urgencyRank[u]
	return ok
}

// AtLeast reports whether u is as urgent as min. An empty min matches everything.
func (u Urgency) AtLeast(min Urgency) bool {
	if min == "" {
		return true
	}
	return urgencyRank[u] >= urgencyRank[min]
}

// ParseUrgency accepts the level names case-insensitively.
func ParseUrgency(raw string) (Urgency, bool) {
	u := Urgency(strings.ToLower(strings.TrimSpace(raw)))
	return u, u.IsValid()
}

// ParseState accepts the state names case-insensitively.
func ParseState(raw string) (State, bool) {
	s := State(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.IsValid()
}
