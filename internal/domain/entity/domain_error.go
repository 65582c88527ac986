package entity

// DomainError is a rule violation raised by the catalog entities. Next to
// the human-readable message it carries a stable code naming the violated
// rule, e.g. INVALID_STATUS_TRANSITION when a terminal job is restarted or
// INVALID_CSV_HEADER when an uploaded batch lacks the id column, so callers
// can branch without parsing message text.
type DomainError struct {
	message string
	code    string
}

// NewDomainError builds a rule violation with its stable code.
func NewDomainError(message, code string) *DomainError {
	return &DomainError{message: message, code: code}
}

// Error returns the human-readable message.
func (e *DomainError) Error() string {
	return e.message
}

// Code returns the stable machine-readable code.
func (e *DomainError) Code() string {
	return e.code
}

// Message returns the message without satisfying the error interface, for
// callers that hold a *DomainError directly.
func (e *DomainError) Message() string {
	return e.message
}
