// Package abci models the small slice of the Application Blockchain
// Interface message surface the toolkit round-trips (spec.md §6, "ABCI and
// RPC material, scoped as adjacent (non-core) packages that nonetheless
// round-trip"). Encoding mirrors lnwire.Message's closed-enum dispatch
// style (makeEmptyMessage / MsgType), substituting JSON payloads for the
// wire framing the Lightning protocol itself doesn't need here.
package abci

import (
	"encoding/json"
	"fmt"
)

// MessageType is the unique discriminant identifying an ABCI message,
// mirroring lnwire.MessageType's role.
type MessageType uint8

const (
	MsgBeginBlock MessageType = iota + 1
	MsgCheckTxNew
	MsgCheckTxRecheck
	MsgDeliverTx
	MsgEndBlock
	MsgCommit
	MsgOfferSnapshot
	MsgApplySnapshotChunk
)

func (t MessageType) String() string {
	switch t {
	case MsgBeginBlock:
		return "BeginBlock"
	case MsgCheckTxNew:
		return "CheckTx{New}"
	case MsgCheckTxRecheck:
		return "CheckTx{Recheck}"
	case MsgDeliverTx:
		return "DeliverTx"
	case MsgEndBlock:
		return "EndBlock"
	case MsgCommit:
		return "Commit"
	case MsgOfferSnapshot:
		return "OfferSnapshot"
	case MsgApplySnapshotChunk:
		return "ApplySnapshotChunk"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// ErrUnknownMessageType is returned by Decode for an unrecognized
// discriminant, rather than zero-valuing silently (spec.md §7).
type ErrUnknownMessageType struct {
	Type MessageType
}

func (e ErrUnknownMessageType) Error() string {
	return fmt.Sprintf("abci: unknown message type %d", uint8(e.Type))
}

// Request is a client-to-application ABCI call.
type Request struct {
	Type MessageType
	Data json.RawMessage
}

// Response is the application's reply to a Request.
type Response struct {
	Type MessageType
	Data json.RawMessage
}

// BeginBlockRequest carries the header for the block about to be applied.
type BeginBlockRequest struct {
	Height  int64  `json:"height"`
	ChainID string `json:"chain_id"`
}

// CheckTxRequest carries a transaction to admission-check, tagged New or
// Recheck by its MessageType.
type CheckTxRequest struct {
	Tx []byte `json:"tx"`
}

// DeliverTxRequest carries a transaction to execute.
type DeliverTxRequest struct {
	Tx []byte `json:"tx"`
}

// CommitResponse carries the application's state hash after committing a
// block.
type CommitResponse struct {
	AppHash []byte `json:"app_hash"`
}

// OfferSnapshotRequest offers a state-sync snapshot for the application to
// accept or reject.
type OfferSnapshotRequest struct {
	Height uint64 `json:"height"`
	Chunks uint32 `json:"chunks"`
}

// Encode marshals payload into a Request of the given type.
func Encode(t MessageType, payload interface{}) (Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Request{}, err
	}
	return Request{Type: t, Data: data}, nil
}

// decodeRequest returns a freshly allocated payload value for kind, the
// same shape as lnwire.makeEmptyMessage's type switch.
func decodeRequest(kind MessageType) (interface{}, error) {
	switch kind {
	case MsgBeginBlock:
		return &BeginBlockRequest{}, nil
	case MsgCheckTxNew, MsgCheckTxRecheck:
		return &CheckTxRequest{}, nil
	case MsgDeliverTx:
		return &DeliverTxRequest{}, nil
	case MsgEndBlock, MsgCommit:
		return &struct{}{}, nil
	case MsgOfferSnapshot:
		return &OfferSnapshotRequest{}, nil
	case MsgApplySnapshotChunk:
		return &struct {
			Index uint32 `json:"index"`
			Chunk []byte `json:"chunk"`
		}{}, nil
	default:
		return nil, ErrUnknownMessageType{Type: kind}
	}
}

// Decode unmarshals r.Data into the concrete payload type for r.Type,
// returning ErrUnknownMessageType for an unrecognized discriminant.
func Decode(r Request) (interface{}, error) {
	payload, err := decodeRequest(r.Type)
	if err != nil {
		return nil, err
	}
	if len(r.Data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(r.Data, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
