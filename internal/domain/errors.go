package domain

import "fmt"

// TokenFetchError reports that the credential endpoint was unreachable,
// rejected the request or returned no token.
type TokenFetchError struct {
	Status int
	Reason string
	Err    error
}

func (e *TokenFetchError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("token endpoint returned %d: %s", e.Status, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("token fetch: %s: %v", e.Reason, e.Err)
	default:
		return "token fetch: " + e.Reason
	}
}

func (e *TokenFetchError) Unwrap() error { return e.Err }

// ConnectError reports a transport or audio device failure while joining.
type ConnectError struct {
	Stage string
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect: %s: %v", e.Stage, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// RPCPayloadError is a malformed or semantically empty inbound RPC payload.
// Err is set when the payload was not valid JSON.
type RPCPayloadError struct {
	Method string
	Reason string
	Err    error
}

func (e *RPCPayloadError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func (e *RPCPayloadError) Unwrap() error { return e.Err }

// Malformed reports whether the payload failed to parse at all.
func (e *RPCPayloadError) Malformed() bool { return e.Err != nil }
