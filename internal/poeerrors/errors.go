// Package poeerrors defines the stable error taxonomy shared by the
// engagement, stake, and validator engines. Every failure an engine
// returns is either one of these sentinels (wrapped with fmt.Errorf
// "%w" when extra context is useful) or one of the parameterized
// struct errors below.
package poeerrors

import (
	"errors"
	"fmt"
)

var (
	ErrNoMembersToDistributeTo = errors.New("no members to distribute to")
	ErrNoFunds                 = errors.New("no funds sent")
	ErrZeroAmount              = errors.New("amount must be greater than zero")
	ErrInvalidDenom            = errors.New("invalid denom")
	ErrNothingToClaim          = errors.New("nothing to claim")
	ErrInvalidPortion          = errors.New("portion must be between 0 and 1")
	ErrInvalidPubkey           = errors.New("invalid ed25519 pubkey")
	ErrDuplicatePubkey         = errors.New("pubkey already bound to another operator")
	ErrAlreadyRegistered       = errors.New("sender already registered a validator key")
	ErrOperatorNotFound        = errors.New("operator not found")
	ErrJailingNotExpired       = errors.New("jailing period has not expired")
	ErrInvalidEpoch            = errors.New("invalid epoch length")
	ErrInvalidMinPoints        = errors.New("invalid min_points")
	ErrInvalidMaxValidators    = errors.New("invalid max_validators")
	ErrInvalidScaling          = errors.New("invalid scaling factor")
	ErrInvalidRewardDenom      = errors.New("invalid reward denom")
	ErrInvalidRewardsRatio     = errors.New("sum of distribution ratios exceeds 1")
	ErrInvalidMetadataWebsitePrefix = errors.New("website must start with http:// or https://")
	ErrHookNotRegistered       = errors.New("hook not registered")
	ErrHookAlreadyRegistered   = errors.New("hook already registered")
	ErrSlasherNotRegistered    = errors.New("slasher not registered")
	ErrSlasherAlreadyRegistered = errors.New("slasher already registered")
	ErrNoPreauth               = errors.New("no preauth available")
	ErrUnknownSudoMsg          = errors.New("unknown sudo message")
)

// Unauthorized reports that the caller is not permitted to perform an
// operation. The message carries who was expected vs who called.
type Unauthorized struct {
	Message string
}

func (e *Unauthorized) Error() string { return "unauthorized: " + e.Message }

// NewUnauthorized builds an Unauthorized error with a formatted message.
func NewUnauthorized(format string, args ...any) error {
	return &Unauthorized{Message: fmt.Sprintf(format, args...)}
}

// MissingDenom reports that a required denom was absent from the funds
// sent with an operation.
type MissingDenom struct {
	Expected string
}

func (e *MissingDenom) Error() string { return fmt.Sprintf("missing denom, expected %q", e.Expected) }

// ExtraDenoms reports that funds were sent in denoms other than the
// one configured denom.
type ExtraDenoms struct {
	Expected string
}

func (e *ExtraDenoms) Error() string {
	return fmt.Sprintf("extra denoms sent, only %q is accepted", e.Expected)
}

// InvalidMetadata reports a validator metadata field outside its
// allowed length bounds.
type InvalidMetadata struct {
	Field    string
	Min, Max int
}

func (e *InvalidMetadata) Error() string {
	return fmt.Sprintf("invalid metadata field %q: length must be between %d and %d", e.Field, e.Min, e.Max)
}
