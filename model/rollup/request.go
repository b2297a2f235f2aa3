package rollup

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Kind is the kind of a request issued by the rollup server.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAdvance
	KindInspect
)

const (
	requestTypeAdvance = "advance_state"
	requestTypeInspect = "inspect_state"
)

// ParseKind maps a request_type to its Kind. Unrecognized types map to
// KindUnknown.
func ParseKind(requestType string) Kind {
	switch requestType {
	case requestTypeAdvance:
		return KindAdvance
	case requestTypeInspect:
		return KindInspect
	default:
		return KindUnknown
	}
}

func (k Kind) String() string {
	switch k {
	case KindAdvance:
		return requestTypeAdvance
	case KindInspect:
		return requestTypeInspect
	default:
		return "unknown"
	}
}

// Metadata accompanies advance requests and describes the input on the base layer.
type Metadata struct {
	MsgSender   string `json:"msg_sender"`
	EpochIndex  uint64 `json:"epoch_index"`
	InputIndex  uint64 `json:"input_index"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"`
}

// Request is a request received from the rollup server. It is immutable once
// decoded.
type Request struct {
	Kind Kind
	// RequestType is the request_type as sent by the server.
	RequestType string
	Metadata    *Metadata

	payload    []byte
	hasPayload bool
}

// NewRequest builds a request carrying payload.
func NewRequest(kind Kind, payload []byte) *Request {
	return &Request{
		Kind:        kind,
		RequestType: kind.String(),
		payload:     payload,
		hasPayload:  true,
	}
}

// Payload returns the request payload, or ErrMissingPayload if the server did
// not send one.
func (r *Request) Payload() ([]byte, error) {
	if !r.hasPayload {
		return nil, ErrMissingPayload
	}
	return r.payload, nil
}

type wireRequest struct {
	RequestType json.RawMessage `json:"request_type"`
	Data        *wireData       `json:"data"`
}

type wireData struct {
	Payload  *string   `json:"payload"`
	Metadata *Metadata `json:"metadata"`
}

// DecodeRequest decodes the body of a /finish response. Malformed JSON, a
// request_type that is not a string or a payload that is not 0x-prefixed hex
// yield a MalformedRequestError. A missing payload is not a decoding error;
// it surfaces from Request.Payload.
func DecodeRequest(body []byte) (*Request, error) {
	var wire wireRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, NewMalformedRequestError(fmt.Errorf("invalid json: %w", err))
	}

	var requestType string
	if len(wire.RequestType) == 0 {
		return nil, NewMalformedRequestErrorf("request_type is missing")
	}
	if err := json.Unmarshal(wire.RequestType, &requestType); err != nil {
		return nil, NewMalformedRequestErrorf("request_type is not a string: %s", wire.RequestType)
	}

	req := &Request{
		Kind:        ParseKind(requestType),
		RequestType: requestType,
	}
	if wire.Data == nil {
		return req, nil
	}

	req.Metadata = wire.Data.Metadata
	if wire.Data.Payload != nil {
		payload, err := hexutil.Decode(*wire.Data.Payload)
		if err != nil {
			return nil, NewMalformedRequestError(fmt.Errorf("invalid payload %q: %w", *wire.Data.Payload, err))
		}
		req.payload = payload
		req.hasPayload = true
	}

	return req, nil
}
