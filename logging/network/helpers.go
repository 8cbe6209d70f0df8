package network

import (
	"context"

	"coinrush/logging"
)

const (
	// EventMalformedFrame is emitted when a frame header declares an impossible length.
	EventMalformedFrame logging.EventType = "network.malformed_frame"
	// EventDecodeFailed is emitted when a message body is too short for its type.
	EventDecodeFailed logging.EventType = "network.decode_failed"
	// EventSendDropped is emitted when a connection's outbound queue is full.
	EventSendDropped logging.EventType = "network.send_dropped"
)

// MalformedFramePayload counts the header blocks discarded during a read.
type MalformedFramePayload struct {
	Discarded int `json:"discarded"`
}

// DecodeFailedPayload describes a message that could not be decoded.
type DecodeFailedPayload struct {
	MessageType uint8  `json:"messageType"`
	Length      int    `json:"length"`
	Error       string `json:"error"`
}

// SendDroppedPayload captures the queue depth when a send was dropped.
type SendDroppedPayload struct {
	QueueDepth int `json:"queueDepth"`
}

// MalformedFrame publishes a debug event for discarded header blocks.
func MalformedFrame(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload MalformedFramePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMalformedFrame,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// DecodeFailed publishes a warning for an undecodable message.
func DecodeFailed(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload DecodeFailedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDecodeFailed,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}

// SendDropped publishes a warning when a player can no longer keep up.
func SendDropped(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SendDroppedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSendDropped,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
