package broker

import "encoding/json"

// Frame is the envelope for every WebSocket message in both directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func mustFrame(frameType string, payload interface{}) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("{}")
	}
	data, err := json.Marshal(Frame{Type: frameType, Payload: raw})
	if err != nil {
		return []byte(`{"type":"` + frameType + `"}`)
	}
	return data
}

type messageSendPayload struct {
	Ciphertext   string  `json:"ciphertext"`
	Nonce        string  `json:"nonce"`
	Tag          string  `json:"tag"`
	MsgType      string  `json:"msg_type"`
	AttachmentID *string `json:"attachment_id,omitempty"`
}

type announceNamePayload struct {
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type verifyParticipantPayload struct {
	TargetParticipantID int64  `json:"target_participant_id"`
	Accepted            bool   `json:"accepted"`
	VerifierName        string `json:"verifier_name"`
}

type participantView struct {
	ParticipantID int64  `json:"participant_id"`
	Role          string `json:"role"`
	DisplayName   string `json:"display_name,omitempty"`
	IsConnected   bool   `json:"is_connected"`
}
