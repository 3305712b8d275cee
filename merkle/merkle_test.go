package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyTreeMatchesSHA256OfEmptyInput(t *testing.T) {
	got := SimpleHashFromByteVectors(nil)
	want, err := hex.DecodeString("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSingleLeafIsDomainSeparatedFromPlainSHA256(t *testing.T) {
	item := []byte("validator-set-hash")

	got := SimpleHashFromByteVectors([][]byte{item})

	expected := sha256.Sum256(append([]byte{0x00}, item...))
	require.Equal(t, expected[:], got)

	plain := sha256.Sum256(item)
	require.NotEqual(t, plain[:], got, "leaf hash must be domain-separated from a bare SHA256")
}

func TestTwoLeavesCombineWithInnerPrefix(t *testing.T) {
	a, b := []byte("a"), []byte("bb")

	got := SimpleHashFromByteVectors([][]byte{a, b})

	leftHash := sha256.Sum256(append([]byte{0x00}, a...))
	rightHash := sha256.Sum256(append([]byte{0x00}, b...))
	combined := append([]byte{0x01}, leftHash[:]...)
	combined = append(combined, rightHash[:]...)
	expected := sha256.Sum256(combined)

	require.Equal(t, expected[:], got)
}

func TestDeterministic(t *testing.T) {
	items := [][]byte{[]byte("x"), []byte("y"), []byte("z")}
	h1 := SimpleHashFromByteVectors(items)
	h2 := SimpleHashFromByteVectors(items)
	require.Equal(t, h1, h2)
}

func TestOrderSensitive(t *testing.T) {
	a := SimpleHashFromByteVectors([][]byte{[]byte("x"), []byte("y")})
	b := SimpleHashFromByteVectors([][]byte{[]byte("y"), []byte("x")})
	require.NotEqual(t, a, b)
}

func TestOddLengthTreeUsesLeftHeavySplit(t *testing.T) {
	items := [][]byte{[]byte("1"), []byte("2"), []byte("3")}
	got := SimpleHashFromByteVectors(items)

	// splitPoint(3) == 2: left subtree covers items[:2], right covers items[2:].
	left := SimpleHashFromByteVectors(items[:2])
	right := SimpleHashFromByteVectors(items[2:])
	combined := append([]byte{0x01}, left...)
	combined = append(combined, right...)
	expected := sha256.Sum256(combined)

	require.Equal(t, expected[:], got)
}

func TestSplitPointPanicsOnEmpty(t *testing.T) {
	require.Panics(t, func() { splitPoint(0) })
}
