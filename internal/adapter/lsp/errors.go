package lsp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Standard errors returned by the engine.
var (
	// ErrNotConnected indicates the transport is not open.
	ErrNotConnected = errors.New("lsp: not connected")

	// ErrConnectionClosed indicates the connection was torn down while a
	// request was in flight.
	ErrConnectionClosed = errors.New("lsp: connection closed")

	// ErrTimeout indicates a request outlived its deadline without a response.
	ErrTimeout = errors.New("lsp: request timed out")

	// ErrDocumentNotOpen indicates an operation on a document that is not
	// tracked as open.
	ErrDocumentNotOpen = errors.New("lsp: document not open")

	// ErrHandshakeFailed indicates the initialize exchange did not complete.
	ErrHandshakeFailed = errors.New("lsp: initialize handshake failed")

	// ErrRetriesExhausted indicates automatic reconnection gave up; only a
	// manual reconnect resumes.
	ErrRetriesExhausted = errors.New("lsp: reconnect attempts exhausted")
)

// RPCError is a JSON-RPC 2.0 error object from the server. It is returned as
// the call error when a response frame carries an error member.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)
