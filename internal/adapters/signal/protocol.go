package signal

// Client to server.
const (
	msgOffer       = "offer"
	msgCandidate   = "candidate"
	msgAttributes  = "attributes"
	msgRPCResponse = "rpc_response"
	msgPing        = "ping"
	msgLeave       = "leave"
)

// Server to client.
const (
	msgJoined     = "joined"
	msgAnswer     = "answer"
	msgRPCRequest = "rpc_request"
	msgPong       = "pong"
	msgError      = "error"
)

type envelope struct {
	Type string `json:"type"`
}

type joinedMessage struct {
	Type     string `json:"type"`
	Identity string `json:"identity"`
	Room     string `json:"room"`
}

type sdpMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidateMessage struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type attributesMessage struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type rpcRequestMessage struct {
	Type              string `json:"type"`
	ID                string `json:"id"`
	Method            string `json:"method"`
	Payload           string `json:"payload"`
	CallerIdentity    string `json:"caller_identity"`
	ResponseTimeoutMs int64  `json:"response_timeout_ms"`
}

type rpcResponseMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Payload string `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type leaveMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}
