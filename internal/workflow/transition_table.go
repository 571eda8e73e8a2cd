// Package workflow holds the ticket transition table. It is a pure lookup with
// no I/O; the ticket service consults it before every state change.
package workflow

import (
	"repair_shop_backend/internal/models"
	"repair_shop_backend/pkg/apperrors"
)

var forward = map[models.TicketState][]models.TicketState{
	models.StateIntake:     {models.StateDiagnosing},
	models.StateDiagnosing: {models.StateQuoted},
	models.StateQuoted:     {models.StateApproved, models.StateRejected},
	models.StateApproved:   {models.StateRepairing},
	models.StateRejected:   {models.StateCancelled},
	models.StateRepairing:  {models.StateTesting},
	models.StateTesting:    {models.StateReady, models.StateRepairing},
	models.StateReady:      {models.StateDelivered},
	models.StateDelivered:  nil,
	models.StateCancelled:  nil,
}

// IsTerminal reports whether no transition leaves the state.
func IsTerminal(s models.TicketState) bool {
	return s == models.StateDelivered || s == models.StateCancelled
}

// IsLegal reports whether a ticket may move from one state to another.
// Staying in place is always legal; CANCELLED is reachable from every
// non-terminal state.
func IsLegal(from, to models.TicketState) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if to == models.StateCancelled && !IsTerminal(from) {
		return true
	}
	for _, s := range forward[from] {
		if s == to {
			return true
		}
	}
	return false
}

// LegalDestinations lists the states reachable in one move, in workflow order.
// Self-transitions are not listed.
func LegalDestinations(from models.TicketState) []models.TicketState {
	if IsTerminal(from) || !from.Valid() {
		return []models.TicketState{}
	}
	out := make([]models.TicketState, 0, len(forward[from])+1)
	out = append(out, forward[from]...)
	if !contains(out, models.StateCancelled) {
		out = append(out, models.StateCancelled)
	}
	return out
}

// Options decorates LegalDestinations with display names.
func Options(from models.TicketState) []models.StateOption {
	dests := LegalDestinations(from)
	opts := make([]models.StateOption, 0, len(dests))
	for _, s := range dests {
		opts = append(opts, models.StateOption{State: s, Name: s.DisplayName(), Description: s.Description()})
	}
	return opts
}

// Validate returns an InvalidTransition error naming the legal set when the move is not allowed.
func Validate(ticketID int64, from, to models.TicketState) error {
	if IsLegal(from, to) {
		return nil
	}
	return Reject(ticketID, from, to)
}

// Reject builds the InvalidTransition error for a move the caller has already refused.
func Reject(ticketID int64, from, to models.TicketState) error {
	dests := LegalDestinations(from)
	legal := make([]string, len(dests))
	for i, s := range dests {
		legal[i] = string(s)
	}
	return apperrors.InvalidTransition("ticket", ticketID, string(from), string(to), legal)
}

func contains(states []models.TicketState, s models.TicketState) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}
