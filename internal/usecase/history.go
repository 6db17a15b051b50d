package usecase

import "lattice/internal/domain"

// IncomingHasHistory reports whether a request carries its own conversation,
// detected by the presence of an assistant or system message.
func IncomingHasHistory(incoming []domain.Message) bool {
	for _, m := range incoming {
		if m.Role == domain.RoleAssistant || m.Role == domain.RoleSystem {
			return true
		}
	}
	return false
}

// SelectMessageHistory returns the prior history to feed the agent: nothing
// when the request is self-contained, otherwise a copy of stored.
func SelectMessageHistory(incoming, stored []domain.Message) []domain.Message {
	if IncomingHasHistory(incoming) {
		return []domain.Message{}
	}
	return domain.CloneMessages(stored)
}

// MergeMessages concatenates base, incoming and produced in order into a new
// slice. It never reorders or deduplicates.
func MergeMessages(base, incoming, produced []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(base)+len(incoming)+len(produced))
	out = append(out, base...)
	out = append(out, incoming...)
	out = append(out, produced...)
	return out
}
