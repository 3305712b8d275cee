package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodekit-sh/tm-toolkit/header"
)

// TestBlockNewHeightCommitGrid implements spec.md §8 Testable Property 7:
// the four-quadrant height/commit grid.
func TestBlockNewHeightCommitGrid(t *testing.T) {
	cases := []struct {
		name       string
		height     int64
		lastCommit *Commit
		wantErr    bool
	}{
		{name: "genesis with no last commit", height: 1, lastCommit: nil, wantErr: false},
		{name: "genesis with a last commit is invalid", height: 1, lastCommit: &Commit{Height: 0}, wantErr: true},
		{name: "non-genesis with a last commit", height: 2, lastCommit: &Commit{Height: 1}, wantErr: false},
		{name: "non-genesis with no last commit is invalid", height: 2, lastCommit: nil, wantErr: true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b, err := New(header.Header{Height: c.height}, Data{}, Evidence{}, c.lastCommit)
			if c.wantErr {
				require.Error(t, err)
				require.Nil(t, b)
				var invalid ErrInvalidLastCommit
				require.ErrorAs(t, err, &invalid)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, b)
			require.Equal(t, c.height, b.Header.Height)
		})
	}
}
