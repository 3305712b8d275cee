package header

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nodekit-sh/tm-toolkit/merkle"
)

func sampleHeader() Header {
	return Header{
		Version:            Version{Block: 11, App: 1},
		ChainID:            "test-chain",
		Height:             100,
		Time:               time.Unix(1_700_000_000, 0).UTC(),
		LastBlockID:        BlockID{Hash: []byte("last-block-hash"), PartSetHash: []byte("parts"), PartSetTotal: 1},
		LastCommitHash:     []byte("last-commit"),
		DataHash:           []byte("data"),
		ValidatorsHash:     []byte("validators"),
		NextValidatorsHash: []byte("next-validators"),
		ConsensusHash:      []byte("consensus"),
		AppHash:            []byte("app"),
		LastResultsHash:    []byte("last-results"),
		EvidenceHash:       []byte("evidence"),
		ProposerAddress:    []byte("proposer"),
	}
}

// TestHashIsDeterministicForEqualHeaders implements spec.md §8 invariant 4:
// sha256(merkle_preimage(header)) is deterministic and equal for logically
// equal headers.
func TestHashIsDeterministicForEqualHeaders(t *testing.T) {
	h1 := sampleHeader()
	h2 := sampleHeader()

	root1 := merkle.SimpleHashFromByteVectors(h1.SerializeToPreimage())
	root2 := merkle.SimpleHashFromByteVectors(h2.SerializeToPreimage())

	require.Equal(t, root1, root2)
}

func TestHashChangesWithAnyFieldMutation(t *testing.T) {
	base := sampleHeader()
	baseRoot := merkle.SimpleHashFromByteVectors(base.SerializeToPreimage())

	mutated := sampleHeader()
	mutated.Height = 101
	mutatedRoot := merkle.SimpleHashFromByteVectors(mutated.SerializeToPreimage())

	require.NotEqual(t, baseRoot, mutatedRoot)
}

func TestSerializeToPreimagePreservesFieldCount(t *testing.T) {
	h := sampleHeader()
	require.Len(t, h.SerializeToPreimage(), 14)
}
