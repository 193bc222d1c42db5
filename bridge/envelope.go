package bridge

import (
	"encoding/json"
	"fmt"
)

const envelopeMarker = "kvcore-v1"

type envelope struct {
	Marker  string `json:"m"`
	Node    string `json:"n"`
	Payload []byte `json:"p"`
}

func encodeEnvelope(node string, payload []byte) ([]byte, error) {
	body, err := json.Marshal(envelope{Marker: envelopeMarker, Node: node, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode bridge envelope: %w", err)
	}
	return body, nil
}

// decodeEnvelope reports false for bodies that are not envelopes; those are
// treated as raw payloads from non-bridge publishers.
func decodeEnvelope(body []byte) (envelope, bool) {
	var env envelope
	if len(body) == 0 || body[0] != '{' {
		return env, false
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, false
	}
	if env.Marker != envelopeMarker {
		return envelope{}, false
	}
	return env, true
}
