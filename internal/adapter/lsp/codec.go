package lsp

import (
	"encoding/json"
	"fmt"
)

// jsonrpcVersion is the only protocol version this engine speaks.
const jsonrpcVersion = "2.0"

// Message is a decoded JSON-RPC 2.0 frame: a request, response or
// notification. One JSON object per transport frame; batching is not used.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// MessageKind classifies a decoded inbound frame.
type MessageKind int

const (
	// KindInvalid marks a frame that is syntactically JSON-RPC but fits no
	// known shape. Such frames are dropped by the caller.
	KindInvalid MessageKind = iota
	// KindResponse is a reply to a request this client sent.
	KindResponse
	// KindNotification is a server push with no id.
	KindNotification
	// KindServerRequest is a request initiated by the server, expecting a
	// response from this client.
	KindServerRequest
)

// Kind classifies the message. A frame with an id and a result or error
// member is a response; a frame with a method and an id is a server request;
// a frame with a method and no id is a notification.
func (m *Message) Kind() MessageKind {
	switch {
	case m.ID != nil && (m.Result != nil || m.Error != nil):
		return KindResponse
	case m.Method != "" && m.ID != nil:
		return KindServerRequest
	case m.Method != "":
		return KindNotification
	default:
		return KindInvalid
	}
}

// EncodeRequest builds a request frame. The id must be positive and unique
// for the lifetime of the connection; the correlator owns id allocation.
func EncodeRequest(id int64, method string, params any) ([]byte, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		JSONRPC: jsonrpcVersion,
		ID:      &id,
		Method:  method,
		Params:  raw,
	})
}

// EncodeNotification builds a notification frame (no id, no response).
func EncodeNotification(method string, params any) ([]byte, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  raw,
	})
}

// EncodeResponse builds a success response to a server-initiated request.
func EncodeResponse(id int64, result any) ([]byte, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return json.Marshal(Message{
		JSONRPC: jsonrpcVersion,
		ID:      &id,
		Result:  raw,
	})
}

// EncodeErrorResponse builds an error response to a server-initiated request.
func EncodeErrorResponse(id int64, code int, message string) ([]byte, error) {
	return json.Marshal(Message{
		JSONRPC: jsonrpcVersion,
		ID:      &id,
		Error:   &RPCError{Code: code, Message: message},
	})
}

// Decode parses a raw frame into a Message. Callers log and drop frames that
// fail to decode; a framing error never propagates past the read loop.
func Decode(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &msg, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return raw, nil
}
