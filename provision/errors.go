package provision

import (
	"fmt"
	"strings"
)

// ValidationError reports bad input, including referenced ids that do not
// resolve against the catalog. When it is returned, the domain store holds
// no trace of the request.
type ValidationError struct {
	Msg        string
	UnknownIDs []string
}

func (e *ValidationError) Error() string {
	if len(e.UnknownIDs) > 0 {
		return fmt.Sprintf("provision: %s: %s", e.Msg, strings.Join(e.UnknownIDs, ", "))
	}
	return "provision: " + e.Msg
}

// ConflictError reports that the login identifier is already in use. No
// store mutation has occurred when it is returned from the pre-flight check;
// a late conflict surfaced by the store's own unique constraint takes the
// normal compensation path first.
type ConflictError struct {
	LoginID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("provision: login identifier %q already in use", e.LoginID)
}

// ProvisioningFailure records that an intermediate step failed after at
// least one prior step had committed and that every compensating action
// succeeded. The triggering error is reachable through Unwrap.
type ProvisioningFailure struct {
	Step string
	Err  error
}

func (e *ProvisioningFailure) Error() string {
	return fmt.Sprintf("provision: step %s failed: %v", e.Step, e.Err)
}

func (e *ProvisioningFailure) Unwrap() error { return e.Err }

// CompensationFailure records that a compensating delete itself failed after
// a step failure. It is not recoverable automatically: a residual record
// (typically an orphaned credential) remains and needs operator attention.
// Both the triggering error and the compensation error are reachable through
// Unwrap.
type CompensationFailure struct {
	Step  string
	Cause error
	Err   error
}

func (e *CompensationFailure) Error() string {
	return fmt.Sprintf("provision: step %s failed (%v); compensation also failed: %v", e.Step, e.Cause, e.Err)
}

func (e *CompensationFailure) Unwrap() []error { return []error{e.Cause, e.Err} }

// PartialDeprovisioningFailure records a deprovisioning run that stopped
// partway across the two stores. Removed and Remaining enumerate exactly
// which of the entity's parts were deleted and which still exist.
type PartialDeprovisioningFailure struct {
	Kind      Kind
	ID        string
	Removed   []string
	Remaining []string
	Err       error
}

func (e *PartialDeprovisioningFailure) Error() string {
	return fmt.Sprintf("provision: deprovisioning %s %s stopped partway (removed: %s; remaining: %s): %v",
		e.Kind, e.ID, strings.Join(e.Removed, ","), strings.Join(e.Remaining, ","), e.Err)
}

func (e *PartialDeprovisioningFailure) Unwrap() error { return e.Err }
