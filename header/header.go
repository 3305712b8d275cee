// Package header defines the block header fields relevant to hashing and
// fork detection, and their canonical pre-image encoding (spec.md §6,
// "Header pre-image encoding").
package header

import (
	"encoding/binary"
	"time"
)

// BlockID identifies a block by hash and (for the part-set) size, the way
// Tendermint's LastBlockID does.
type BlockID struct {
	Hash          []byte
	PartSetHash   []byte
	PartSetTotal  uint32
}

// Version carries the block and app protocol versions.
type Version struct {
	Block uint64
	App   uint64
}

// Header is the subset of block header fields needed to compute its Merkle
// pre-image hash (spec.md §6: "used by reference only; invariants
// specified where consumed"). Field order here is the canonical order used
// by SerializeToPreimage and MUST NOT be reordered.
type Header struct {
	Version Version
	ChainID string
	Height  int64
	Time    time.Time

	LastBlockID BlockID

	LastCommitHash     []byte
	DataHash           []byte
	ValidatorsHash     []byte
	NextValidatorsHash []byte
	ConsensusHash      []byte
	AppHash            []byte
	LastResultsHash    []byte
	EvidenceHash       []byte
	ProposerAddress    []byte
}

// encodeUvarint appends x as a little-endian uvarint, the same style
// encoding/binary uses elsewhere in the corpus for compact integers.
func encodeUvarint(x uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, x)
	return buf[:n]
}

func encodeVarint(x int64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutVarint(buf, x)
	return buf[:n]
}

func encodeBlockID(id BlockID) []byte {
	out := make([]byte, 0, len(id.Hash)+len(id.PartSetHash)+8)
	out = append(out, encodeUvarint(uint64(len(id.Hash)))...)
	out = append(out, id.Hash...)
	out = append(out, encodeUvarint(uint64(id.PartSetTotal))...)
	out = append(out, encodeUvarint(uint64(len(id.PartSetHash)))...)
	out = append(out, id.PartSetHash...)
	return out
}

// SerializeToPreimage serializes h into the ordered sequence of byte
// vectors consumed by merkle.SimpleHashFromByteVectors, one entry per
// field, in the fixed canonical order (spec.md §6). Hashing is therefore
// independent of any particular wire encoding of the struct itself — only
// this function's field order matters.
func (h Header) SerializeToPreimage() [][]byte {
	versionBytes := append(encodeUvarint(h.Version.Block), encodeUvarint(h.Version.App)...)
	timeBytes := encodeVarint(h.Time.UnixNano())

	return [][]byte{
		versionBytes,
		[]byte(h.ChainID),
		encodeVarint(h.Height),
		timeBytes,
		encodeBlockID(h.LastBlockID),
		h.LastCommitHash,
		h.DataHash,
		h.ValidatorsHash,
		h.NextValidatorsHash,
		h.ConsensusHash,
		h.AppHash,
		h.LastResultsHash,
		h.EvidenceHash,
		h.ProposerAddress,
	}
}
