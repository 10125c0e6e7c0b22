package models

import "slices"

type rule[S ~string] struct {
	from []S
	to   S
}

// machine is a closed transition table. Next is total: every (status, action)
// pair yields exactly one status or a *TransitionError.
type machine[S ~string, A ~string] struct {
	entity string
	rules  map[A]rule[S]
}

func (m machine[S, A]) allows(current S, action A) bool {
	r, ok := m.rules[action]
	return ok && slices.Contains(r.from, current)
}

func (m machine[S, A]) check(id string, current S, action A) error {
	if !m.allows(current, action) {
		return &TransitionError{Entity: m.entity, ID: id, From: string(current), Action: string(action)}
	}
	return nil
}

func (m machine[S, A]) next(id string, current S, action A) (S, error) {
	if err := m.check(id, current, action); err != nil {
		return current, err
	}
	return m.rules[action].to, nil
}
