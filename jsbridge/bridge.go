// Package jsbridge is a thin, explicitly non-core JSON boundary mirroring
// light-client-js/src/lib.rs's `verify` WASM export: deserialize JSON
// parameters, invoke a caller-supplied Verifier, and serialize the
// outcome. It holds no Supervisor state (spec.md §6, §9).
package jsbridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nodekit-sh/tm-toolkit/lightclient"
)

// Options is the simplified parameter set supplied from the JSON boundary,
// mirroring the original source's JsOptions.
type Options struct {
	TrustThresholdNum int64 `json:"trust_threshold_num"`
	TrustThresholdDen int64 `json:"trust_threshold_den"`
	TrustingPeriod    int64 `json:"trusting_period_secs"`
	ClockDrift        int64 `json:"clock_drift_secs"`
}

// ErrSerialization mirrors the original source's Error::Serialization
// variant, naming which parameter failed to deserialize.
type ErrSerialization struct {
	Param string
	Msg   string
}

func (e ErrSerialization) Error() string {
	return fmt.Sprintf("jsbridge: failed to deserialize %q: %s", e.Param, e.Msg)
}

// Verifier is the caller-supplied capability jsbridge.Verify drives; it has
// no dependency on p2p.Supervisor state.
type Verifier interface {
	Verify(untrusted, trusted lightclient.LightBlock, opts Options, now time.Time) (lightclient.LightBlock, lightclient.VerificationError)
}

// result is the JSON shape returned to the caller: exactly one of Block or
// Error is populated.
type result struct {
	Block *lightclient.LightBlock `json:"block,omitempty"`
	Error *verifyError            `json:"error,omitempty"`
}

type verifyError struct {
	HasExpired bool   `json:"has_expired"`
	IsTimeout  bool   `json:"is_timeout"`
	Message    string `json:"message"`
}

// Verify deserializes untrustedJSON/trustedJSON/optionsJSON/nowJSON,
// invokes v, and serializes the outcome — success or verification failure
// alike — as a JSON result rather than a Go error, matching the original
// source's JsValue-always-returned contract. A non-nil error return here
// means deserialization itself failed (spec.md's ErrSerialization).
func Verify(v Verifier, untrustedJSON, trustedJSON, optionsJSON, nowJSON []byte) ([]byte, error) {
	var untrusted, trusted lightclient.LightBlock
	var opts Options
	var now time.Time

	if err := json.Unmarshal(untrustedJSON, &untrusted); err != nil {
		return nil, ErrSerialization{Param: "untrusted", Msg: err.Error()}
	}
	if err := json.Unmarshal(trustedJSON, &trusted); err != nil {
		return nil, ErrSerialization{Param: "trusted", Msg: err.Error()}
	}
	if err := json.Unmarshal(optionsJSON, &opts); err != nil {
		return nil, ErrSerialization{Param: "options", Msg: err.Error()}
	}
	if err := json.Unmarshal(nowJSON, &now); err != nil {
		return nil, ErrSerialization{Param: "now", Msg: err.Error()}
	}

	block, verr := v.Verify(untrusted, trusted, opts, now)

	var out result
	if verr != nil {
		out.Error = &verifyError{HasExpired: verr.HasExpired(), IsTimeout: verr.IsTimeout(), Message: verr.Error()}
	} else {
		out.Block = &block
	}

	return json.Marshal(out)
}
