package alert

import "errors"

var (
	// ErrNotOperator marks privileged operations invoked without the
	// operator role. Handlers turn it into a refusal message.
	ErrNotOperator = errors.New("not an operator")

	// ErrSelfRevoke guards the "operator cannot remove themselves" rule.
	ErrSelfRevoke = errors.New("operator cannot revoke themselves")

	ErrEmptyText = errors.New("text is empty")
)
