package models

import "errors"

// Precondition failures are distinct from Unauthorized so clients can prompt
// the right remediation. "No eligible peer" and "no session yet" are empty
// results, never errors.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotOnboarded = errors.New("participant has not completed onboarding")
	ErrNotActive    = errors.New("participant is not active")
	ErrNotInPool    = errors.New("participant is not in the waiting pool")
	ErrInvalidPeer  = errors.New("peer is not an eligible participant")
	ErrNoOfferFound = errors.New("no offer found for this session")
	ErrNotFound     = errors.New("not found")
)
