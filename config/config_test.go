package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.TrustThreshold.Validate())
	require.True(t, cfg.PreferOldConnOnDuplicate)
	require.Equal(t, 336*time.Hour, cfg.TrustingPeriod)
}

func TestTrustThresholdValidateRange(t *testing.T) {
	cases := []struct {
		name    string
		t       TrustThreshold
		wantErr bool
	}{
		{"exactly one third", TrustThreshold{Num: 1, Den: 3}, false},
		{"exactly one", TrustThreshold{Num: 1, Den: 1}, false},
		{"below one third", TrustThreshold{Num: 1, Den: 4}, true},
		{"above one", TrustThreshold{Num: 2, Den: 1}, true},
		{"zero denominator", TrustThreshold{Num: 1, Den: 0}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.t.Validate()
			if c.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]string{"--bind", "0.0.0.0:26656", "--prefer-old-conn-on-duplicate=false"})
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:26656", cfg.BindAddress)
	require.False(t, cfg.PreferOldConnOnDuplicate)
}

func TestParseRejectsOutOfRangeTrustThreshold(t *testing.T) {
	_, err := Parse([]string{"--trust-threshold-num", "5", "--trust-threshold-den", "1"})
	require.Error(t, err)
}
