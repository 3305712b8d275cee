// Package nodeid derives and manipulates the fixed-size identifiers used to
// name peers throughout the p2p subsystem.
package nodeid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Size is the length in bytes of an ID.
const Size = 20

// ID is a fixed-size identifier derived deterministically from a peer's
// public key. It is comparable and usable directly as a map key.
type ID [Size]byte

// String renders all Size bytes of the ID as lowercase hex.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value, used to detect
// uninitialized identifiers at call sites that forgot to derive one.
func (id ID) IsZero() bool {
	return id == ID{}
}

// FromPublicKey derives the NodeId of a peer from its public key: the
// first Size bytes of SHA-256 over the compressed public key encoding.
func FromPublicKey(pub *btcec.PublicKey) (ID, error) {
	if pub == nil {
		return ID{}, fmt.Errorf("nodeid: nil public key")
	}

	sum := sha256.Sum256(pub.SerializeCompressed())

	var id ID
	copy(id[:], sum[:Size])

	return id, nil
}
