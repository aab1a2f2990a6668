package mls

import (
	"encoding/json"

	"github.com/marmot-go/marmotgroup/internal/marmoterr"
)

// WireMessageType classifies the inner MLS wire message carried inside an
// envelope (internal/envelope), distinguishing application messages from
// proposals and commits per the commit resolver's classify step (§4.9).
type WireMessageType uint8

const (
	WireApplication WireMessageType = 1
	WireProposal    WireMessageType = 2
	WireCommit      WireMessageType = 3
)

// WireMessage is the outermost framing of every MLS message this engine
// produces, before envelope encryption wraps it for transport.
type WireMessage struct {
	Type    WireMessageType `json:"type"`
	Payload []byte          `json:"payload"`
}

// EncodeWireMessage frames a payload with its type.
func EncodeWireMessage(t WireMessageType, payload []byte) ([]byte, error) {
	return json.Marshal(WireMessage{Type: t, Payload: payload})
}

// DecodeWireMessage reverses EncodeWireMessage.
func DecodeWireMessage(data []byte) (WireMessage, error) {
	var wm WireMessage
	if err := json.Unmarshal(data, &wm); err != nil {
		return WireMessage{}, marmoterr.MLSProtocolError("cannot decode MLS wire message", err)
	}
	switch wm.Type {
	case WireApplication, WireProposal, WireCommit:
		return wm, nil
	default:
		return WireMessage{}, marmoterr.MLSProtocolError("unknown MLS wire message type", nil)
	}
}

// CreateApplicationMessage wraps rumorBytes as an application message.
// It does not itself rotate the key schedule: the envelope codec (§4.2)
// must encrypt this message under the state's *current* exporter secret,
// which is also what the receiver holds before processing it. The caller
// (internal/group's sendApplicationRumor) rotates immediately after
// sealing the envelope, and the receiving side rotates immediately after
// decoding it — both exactly once per message, keeping the two states in
// lock-step without either side ever encrypting and decrypting under
// different secrets.
func (s *ClientState) CreateApplicationMessage(rumorBytes []byte) ([]byte, error) {
	return EncodeWireMessage(WireApplication, rumorBytes)
}

// DecodeApplicationMessage reverses CreateApplicationMessage. Like its
// counterpart, it does not rotate the key schedule; see that doc comment
// for why the caller owns the rotation instead.
func (s *ClientState) DecodeApplicationMessage(wireBytes []byte) ([]byte, error) {
	wm, err := DecodeWireMessage(wireBytes)
	if err != nil {
		return nil, err
	}
	if wm.Type != WireApplication {
		return nil, marmoterr.MLSProtocolError("expected an application message", nil)
	}
	return wm.Payload, nil
}
