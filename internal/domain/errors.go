package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors: compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Item / configuration errors
var (
	// ErrItemNotFound is returned when no wagering item matches the given id.
	ErrItemNotFound = errors.New("wagering item not found")

	// ErrItemInactive is returned when a wager targets a soft-disabled item.
	ErrItemInactive = errors.New("wagering item is not active")

	// ErrInvalidItemConfig is returned when an item's period duration or
	// coefficient map cannot be used to generate or settle outcomes.
	ErrInvalidItemConfig = errors.New("invalid wagering item configuration")

	// ErrInvalidPeriodDuration is returned for a non-positive period length.
	ErrInvalidPeriodDuration = errors.New("period duration must be positive")

	// ErrLegacyCoefficients is returned when a historical reward_rate value
	// cannot be normalised into a coefficient map.
	ErrLegacyCoefficients = errors.New("legacy reward rate cannot be normalised")

	// ErrInvalidLabel is returned for a label outside the outcome alphabet.
	ErrInvalidLabel = errors.New("invalid outcome label")

	// ErrEmptyLabelSet is returned when a wager chooses no labels.
	ErrEmptyLabelSet = errors.New("at least one outcome label must be chosen")
)

// Outcome errors
var (
	// ErrOutcomeNotFound is returned when no record exists for (item, period).
	ErrOutcomeNotFound = errors.New("outcome record not found")

	// ErrOutcomeExists is returned when an insert hits the (item, period)
	// uniqueness constraint. The generator treats it as success.
	ErrOutcomeExists = errors.New("outcome record already exists")

	// ErrOutcomeAlreadySettled is returned when an override targets a record
	// whose wagers have already been paid.
	ErrOutcomeAlreadySettled = errors.New("outcome record is already settled")

	// ErrPeriodInFuture is returned when an override targets a period that has
	// not opened yet.
	ErrPeriodInFuture = errors.New("period has not started yet")
)

// Wager / wallet errors
var (
	// ErrPeriodClosed is returned when a wager targets a period other than the
	// open one, or arrives inside the cutoff window.
	ErrPeriodClosed = errors.New("period is closed for wagering")

	// ErrInvalidStake is returned for a zero or negative stake.
	ErrInvalidStake = errors.New("stake must be positive")

	// ErrWagerTooSmall is returned when a stake is below the configured minimum.
	ErrWagerTooSmall = errors.New("stake is below the minimum")

	// ErrInsufficientBalance is returned when the wallet cannot cover the stake.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")

	// ErrWalletNotFound is returned when no wallet exists for the requested user.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrDuplicateCredit is returned when a second credit is written for the
	// same wager.
	ErrDuplicateCredit = errors.New("wager has already been credited")
)

// Auth errors
var (
	// ErrUnauthorized is returned when a valid token is not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the authenticated user lacks the required role.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrTokenExpired is returned when a JWT has passed its TTL.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or its signature
	// does not match.
	ErrTokenInvalid = errors.New("token is invalid")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors.
func IsNotFound(err error) bool {
	return isAny(err, ErrItemNotFound, ErrOutcomeNotFound, ErrWalletNotFound)
}

// IsConflict returns true for errors that represent a state conflict.
func IsConflict(err error) bool {
	return isAny(err,
		ErrOutcomeExists,
		ErrOutcomeAlreadySettled,
		ErrDuplicateCredit,
		ErrPeriodClosed,
		ErrItemInactive,
	)
}

// IsInvalidConfig returns true when an item must be skipped and flagged rather
// than retried.
func IsInvalidConfig(err error) bool {
	return isAny(err, ErrInvalidItemConfig, ErrInvalidPeriodDuration, ErrLegacyCoefficients)
}

// IsValidation returns true for malformed client input.
func IsValidation(err error) bool {
	return isAny(err,
		ErrInvalidLabel,
		ErrEmptyLabelSet,
		ErrInvalidStake,
		ErrWagerTooSmall,
		ErrPeriodInFuture,
	)
}

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool {
	return isAny(err, ErrUnauthorized, ErrForbidden, ErrTokenExpired, ErrTokenInvalid)
}
