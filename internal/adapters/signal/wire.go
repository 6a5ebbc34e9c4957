package signal

import "encoding/json"

// Wire envelope for the signaling websocket. Requests carry an id; the
// backend echoes it on the reply. Frames without an id are server
// pushes.
type envelope struct {
	ID     string          `json:"id,omitempty"`
	Action string          `json:"action,omitempty"`
	Event  string          `json:"event,omitempty"`
	OK     bool            `json:"ok,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	actionGetToken     = "get-token"
	actionCreate       = "create-session"
	actionStart        = "start-session"
	actionICECandidate = "ice-candidate"
	actionSendTask     = "send-task"
	actionSetListening = "set-listening"
	actionSendGesture  = "send-gesture"
	actionSetEmotion   = "set-emotion"
	actionInterrupt    = "interrupt"
	actionStop         = "stop-session"
)

const (
	codeAuth      = "auth"
	codeTransient = "transient"
)

type tokenBody struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in,omitempty"`
}

type createBody struct {
	AvatarID string `json:"avatar_id"`
	VoiceID  string `json:"voice_id,omitempty"`
	Quality  string `json:"quality"`
	Token    string `json:"token"`
}

type createReply struct {
	SessionID string      `json:"session_id"`
	SDP       string      `json:"sdp"`
	ICEServer []iceServer `json:"ice_servers"`
}

type iceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type startBody struct {
	SessionID string `json:"session_id"`
	SDP       string `json:"sdp"`
}

type candidateBody struct {
	SessionID     string  `json:"session_id"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type commandBody struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text,omitempty"`
	Value     string `json:"value,omitempty"`
}

type sessionBody struct {
	SessionID string `json:"session_id"`
}

type pushBody struct {
	Detail string `json:"detail,omitempty"`
}
