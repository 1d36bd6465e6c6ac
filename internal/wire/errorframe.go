package wire

import (
	"time"

	"github.com/google/uuid"
	"github.com/mudmesh/gateway/internal/gwerrors"
)

// ErrorFrame builds the type:"error" reply envelope described in spec §6 for
// a GatewayError, addressed back to the sender of replyTo.
func ErrorFrame(replyTo Envelope, gerr *gwerrors.GatewayError) Envelope {
	payload := map[string]any{
		"code":    int(gerr.Code),
		"message": gerr.Message,
	}
	if len(gerr.Details) > 0 {
		payload["details"] = gerr.Details
	}

	priority := replyTo.Metadata.Priority
	if priority == 0 {
		priority = 5
	}

	return Envelope{
		Version:   ProtocolVersion,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      KindError,
		From:      Endpoint{Mud: GatewayMud},
		To:        replyTo.From,
		Payload:   payload,
		Metadata:  Metadata{Priority: priority, TTL: 60, Encoding: "utf-8"},
	}
}
