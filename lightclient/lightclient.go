// Package lightclient declares the light-client surface the fork detector
// depends on: a LightBlock data type and a LightClient capability, both
// external to the Supervisor's own state (spec.md §2, "Light-Client
// capability: `lightclient` (interface only; external)").
package lightclient

import (
	"github.com/nodekit-sh/tm-toolkit/header"
	"github.com/nodekit-sh/tm-toolkit/nodeid"
)

// SignedHeader pairs a header with the commit that signs it.
type SignedHeader struct {
	Header header.Header
	// CommitSigners lists the validator addresses (or indices) whose
	// signatures back this header, used by a Verifier's trust threshold
	// check. Left as raw bytes since validator set structure beyond
	// signer identity is out of this package's scope.
	CommitSigners [][]byte
}

// ValidatorSet is a minimal stand-in for a Tendermint validator set: the
// subset a Verifier needs (voting power, hash identity) is intentionally
// not modeled here, since trust threshold arithmetic happens inside the
// caller-supplied Verifier, not in this package.
type ValidatorSet struct {
	Hash []byte
}

// LightBlock is a trusted or candidate block as seen by a light client:
// (SignedHeader, ValidatorSet, NextValidatorSet, Provider) (spec.md §3).
type LightBlock struct {
	SignedHeader      SignedHeader
	ValidatorSet      ValidatorSet
	NextValidatorSet  ValidatorSet
	Provider          nodeid.ID
}

// Height returns the block height of the underlying header.
func (lb LightBlock) Height() int64 { return lb.SignedHeader.Header.Height }

// VerificationError is the taxonomy a Verifier reports on failure
// (spec.md §7, "Unchanged taxonomy"). HasExpired distinguishes an expired
// trusting period (still treated as a fork, per spec.md Scenario S5);
// IsTimeout distinguishes an unreachable witness (spec.md Scenario S6).
type VerificationError interface {
	error
	HasExpired() bool
	IsTimeout() bool
}

// ExpiredTrustError reports that the trusted state's trusting period has
// elapsed relative to the verification time.
type ExpiredTrustError struct {
	At string
}

func (e ExpiredTrustError) Error() string  { return "lightclient: trusted state has expired at " + e.At }
func (e ExpiredTrustError) HasExpired() bool { return true }
func (e ExpiredTrustError) IsTimeout() bool  { return false }

// TimeoutError reports that the witness could not be reached in time.
type TimeoutError struct {
	Peer nodeid.ID
}

func (e TimeoutError) Error() string    { return "lightclient: timed out querying witness " + e.Peer.String() }
func (e TimeoutError) HasExpired() bool { return false }
func (e TimeoutError) IsTimeout() bool  { return true }

// VerificationFailure is the catch-all "other" verification error: neither
// expired trust nor a timeout, e.g. an insufficient trust threshold.
type VerificationFailure struct {
	Reason string
}

func (e VerificationFailure) Error() string    { return "lightclient: verification failed: " + e.Reason }
func (e VerificationFailure) HasExpired() bool { return false }
func (e VerificationFailure) IsTimeout() bool  { return false }

// LightClient is the capability a witness exposes to the fork detector:
// fetching a block at a height, and verifying a candidate block against
// trusted state up to a target height (spec.md §4.6, mirroring
// `Instance.light_client` in the original source).
type LightClient interface {
	// GetOrFetchBlock returns the LightBlock at height, fetching and
	// caching it in store if not already present. A non-nil
	// VerificationError with IsTimeout() true means the witness could not
	// be reached (spec.md Scenario S6); any other error is a hard failure.
	GetOrFetchBlock(height int64, store Store) (LightBlock, VerificationError)
	// VerifyToTarget attempts to extend trust from whatever trusted state
	// is in store up to height, returning a VerificationError describing
	// why trust could not be extended.
	VerifyToTarget(height int64, store Store) (LightBlock, VerificationError)
}
