// Package block models the minimal block/commit structure consumed by
// fork detection, enforcing the height/last-commit invariant spec.md §6
// requires at the construction boundary.
package block

import (
	"fmt"

	"github.com/nodekit-sh/tm-toolkit/header"
)

// Commit is the set of validator signatures committing a block at a given
// height and round.
type Commit struct {
	Height     int64
	Round      int32
	Signatures [][]byte
}

// Data is the block's transaction payload.
type Data struct {
	Txs [][]byte
}

// Evidence is a list of misbehavior evidence included in the block.
type Evidence struct {
	Items [][]byte
}

// Block pairs a Header with its Data, Evidence, and the Commit for the
// previous block.
type Block struct {
	Header     header.Header
	Data       Data
	Evidence   Evidence
	LastCommit *Commit
}

// ErrInvalidLastCommit reports a violation of the invariant `(lastCommit !=
// nil) == (header.Height != 1)` (spec.md §6, §7).
type ErrInvalidLastCommit struct {
	Height        int64
	HasLastCommit bool
}

func (e ErrInvalidLastCommit) Error() string {
	return fmt.Sprintf("block: invalid last commit for height %d (has last commit: %v)",
		e.Height, e.HasLastCommit)
}

// New constructs a Block, enforcing that lastCommit is nil iff
// h.Height == 1 (spec.md §6, "Block validation invariants").
func New(h header.Header, data Data, evidence Evidence, lastCommit *Commit) (*Block, error) {
	hasLastCommit := lastCommit != nil
	if hasLastCommit == (h.Height == 1) {
		return nil, ErrInvalidLastCommit{Height: h.Height, HasLastCommit: hasLastCommit}
	}

	return &Block{
		Header:     h,
		Data:       data,
		Evidence:   evidence,
		LastCommit: lastCommit,
	}, nil
}
