package message_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodekit-sh/tm-toolkit/message"
)

func TestValidateKnownTypes(t *testing.T) {
	for _, typ := range []message.Type{message.TypePing, message.TypePong, message.TypeData} {
		require.NoError(t, message.Validate(typ))
	}
}

func TestValidateUnknownType(t *testing.T) {
	err := message.Validate(message.Type(255))
	require.Error(t, err)

	var unknown *message.ErrUnknownType
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, message.Type(255), unknown.Type)
}

func TestTypeString(t *testing.T) {
	require.Equal(t, "Ping", message.TypePing.String())
	require.Contains(t, message.Type(99).String(), "Unknown")
}
