package jsbridge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nodekit-sh/tm-toolkit/lightclient"
)

type fakeVerifier struct {
	block lightclient.LightBlock
	err   lightclient.VerificationError
}

func (f fakeVerifier) Verify(untrusted, trusted lightclient.LightBlock, opts Options, now time.Time) (lightclient.LightBlock, lightclient.VerificationError) {
	return f.block, f.err
}

func marshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestVerifySuccessReturnsBlock(t *testing.T) {
	v := fakeVerifier{block: lightclient.LightBlock{}}

	out, err := Verify(v,
		marshal(t, lightclient.LightBlock{}),
		marshal(t, lightclient.LightBlock{}),
		marshal(t, Options{TrustThresholdNum: 1, TrustThresholdDen: 3}),
		marshal(t, time.Now().UTC()),
	)
	require.NoError(t, err)

	var decoded result
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.NotNil(t, decoded.Block)
	require.Nil(t, decoded.Error)
}

func TestVerifyFailureReturnsError(t *testing.T) {
	v := fakeVerifier{err: lightclient.ExpiredTrustError{At: "h90"}}

	out, err := Verify(v,
		marshal(t, lightclient.LightBlock{}),
		marshal(t, lightclient.LightBlock{}),
		marshal(t, Options{}),
		marshal(t, time.Now().UTC()),
	)
	require.NoError(t, err)

	var decoded result
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Nil(t, decoded.Block)
	require.NotNil(t, decoded.Error)
	require.True(t, decoded.Error.HasExpired)
}

func TestVerifyBadJSONReturnsSerializationError(t *testing.T) {
	v := fakeVerifier{}

	_, err := Verify(v, []byte("not json"), marshal(t, lightclient.LightBlock{}), marshal(t, Options{}), marshal(t, time.Now()))
	require.Error(t, err)

	var serr ErrSerialization
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "untrusted", serr.Param)
}
