package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique constraint conflict.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrPolicyViolation indicates input breaking a client invoicing rule.
	ErrPolicyViolation = errors.New("policy violation")
	// ErrMissingRequiredField indicates a mandatory field is absent.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrApprovalRequired indicates transmission attempted without a valid approval.
	ErrApprovalRequired = errors.New("approval required")
	// ErrInvalidTransition indicates a disallowed draft status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAmbiguousMatch indicates more than one customer candidate matched.
	ErrAmbiguousMatch = errors.New("ambiguous customer match")
	// ErrIncompleteCustomerInfo indicates customer creation lacks mandatory fields.
	ErrIncompleteCustomerInfo = errors.New("incomplete customer info")
	// ErrExternalRejection indicates the invoicing service rejected a request.
	ErrExternalRejection = errors.New("rejected by invoicing service")
	// ErrExternalUnavailable indicates the invoicing service could not be reached.
	ErrExternalUnavailable = errors.New("invoicing service unavailable")
	// ErrListNotFound indicates an unknown reminder list.
	ErrListNotFound = errors.New("reminder list not found")
	// ErrIndexOutOfRange indicates a reminder index outside the list bounds.
	ErrIndexOutOfRange = errors.New("reminder index out of range")
)
