package openshelf

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("openshelf: not found")
	ErrAlreadyExists = errors.New("openshelf: already exists")
	ErrInvalidInput  = errors.New("openshelf: invalid input")
	ErrUnauthorized  = errors.New("openshelf: unauthorized")

	// Book and chapter errors
	ErrBookNotFound          = errors.New("openshelf: book not found")
	ErrInvalidChapterIndex   = errors.New("openshelf: invalid chapter index")
	ErrDuplicateChapterIndex = errors.New("openshelf: duplicate chapter index")
	ErrMaxChaptersReached    = errors.New("openshelf: maximum number of chapters reached")

	// Purchase errors
	ErrAlreadyPurchased  = errors.New("openshelf: already purchased")
	ErrInsufficientFunds = errors.New("openshelf: insufficient funds")
	ErrReceiptNotFound   = errors.New("openshelf: receipt not found")

	// Stake errors
	ErrNotQualifiedForStaking = errors.New("openshelf: not qualified for staking")
	ErrAlreadyStaked          = errors.New("openshelf: already staked on this book")
	ErrMaxStakersReached      = errors.New("openshelf: maximum number of stakers reached")
	ErrStakerNotFound         = errors.New("openshelf: staker not found")
	ErrNoEarningsToClaim      = errors.New("openshelf: no earnings to claim")

	// Access gate errors
	ErrBookNotPurchased    = errors.New("openshelf: book not purchased")
	ErrCollectionNotFound  = errors.New("openshelf: collection not found")
	ErrTokenNotFound       = errors.New("openshelf: access token not found")
	ErrMintFailed          = errors.New("openshelf: access token mint failed")
	ErrMinterNotConfigured = errors.New("openshelf: minter not configured")

	// Store errors
	ErrConflict        = errors.New("openshelf: concurrent modification")
	ErrStoreClosed     = errors.New("openshelf: store is closed")
	ErrMigrationFailed = errors.New("openshelf: migration failed")
)

// Kind is the structured classification of an OpenShelf error.
type Kind string

// Error kinds reported to callers.
const (
	KindNone                   Kind = ""
	KindAlreadyPurchased       Kind = "AlreadyPurchased"
	KindInvalidChapterIndex    Kind = "InvalidChapterIndex"
	KindDuplicateChapterIndex  Kind = "DuplicateChapterIndex"
	KindNotQualifiedForStaking Kind = "NotQualifiedForStaking"
	KindInsufficientFunds      Kind = "InsufficientFunds"
	KindStakerNotFound         Kind = "StakerNotFound"
	KindNoEarningsToClaim      Kind = "NoEarningsToClaim"
	KindUnauthorized           Kind = "Unauthorized"
	KindInvalidInput           Kind = "InvalidInput"
	KindBookNotPurchased       Kind = "BookNotPurchased"
	KindAlreadyStaked          Kind = "AlreadyStaked"
	KindNotFound               Kind = "NotFound"
	KindConflict               Kind = "Conflict"
	KindMintFailure            Kind = "MintFailure"
	KindInternal               Kind = "Internal"
)

// kindTable maps sentinels to kinds.
var kindTable = []struct {
	err  error
	kind Kind
}{
	{ErrAlreadyPurchased, KindAlreadyPurchased},
	{ErrInvalidChapterIndex, KindInvalidChapterIndex},
	{ErrMaxChaptersReached, KindInvalidChapterIndex},
	{ErrDuplicateChapterIndex, KindDuplicateChapterIndex},
	{ErrNotQualifiedForStaking, KindNotQualifiedForStaking},
	{ErrInsufficientFunds, KindInsufficientFunds},
	{ErrStakerNotFound, KindStakerNotFound},
	{ErrNoEarningsToClaim, KindNoEarningsToClaim},
	{ErrUnauthorized, KindUnauthorized},
	{ErrInvalidInput, KindInvalidInput},
	{ErrMaxStakersReached, KindInvalidInput},
	{ErrBookNotPurchased, KindBookNotPurchased},
	{ErrAlreadyStaked, KindAlreadyStaked},
	{ErrConflict, KindConflict},
	{ErrMintFailed, KindMintFailure},
	{ErrMinterNotConfigured, KindMintFailure},
	{ErrNotFound, KindNotFound},
	{ErrBookNotFound, KindNotFound},
	{ErrReceiptNotFound, KindNotFound},
	{ErrCollectionNotFound, KindNotFound},
	{ErrTokenNotFound, KindNotFound},
}

// KindOf returns the Kind of err. It returns KindNone for nil and
// KindInternal for errors that are not part of the taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var me *MintError
	if errors.As(err, &me) {
		return KindMintFailure
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}

// ValidationError represents a validation failure with details.
// It matches ErrInvalidInput with errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("openshelf: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) succeed.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// MintError reports a failure of the external minting collaborator.
// It is never returned for ledger failures.
type MintError struct {
	Op     string
	BookID string
	Owner  string
	Err    error
}

func (e *MintError) Error() string {
	if e.BookID == "" {
		return fmt.Sprintf("openshelf: %s for %s: %v", e.Op, e.Owner, e.Err)
	}
	return fmt.Sprintf("openshelf: %s for %s on %s: %v", e.Op, e.Owner, e.BookID, e.Err)
}

// Unwrap returns the collaborator error.
func (e *MintError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMintFailed) succeed for every MintError.
func (e *MintError) Is(target error) bool { return target == ErrMintFailed }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrReceiptNotFound) ||
		errors.Is(err, ErrCollectionNotFound) ||
		errors.Is(err, ErrTokenNotFound)
}

// IsRetryable returns true if the operation can be retried as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrMintFailed)
}
