package gateway

import (
	"encoding/json"
	"fmt"
)

// Message is the wire envelope for both inbound commands and outbound
// events: an event name plus an event-specific JSON payload.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound command names.
const (
	CmdJoin        = "join"
	CmdLogin       = "host:login"
	CmdSelectSet   = "host:selectSet"
	CmdChangeSlide = "host:changeSlide"
	CmdNextSlide   = "host:nextSlide"
	CmdPrevSlide   = "host:prevSlide"
	CmdStartTimer  = "host:startTimer"
	CmdStopTimer   = "host:stopTimer"
	CmdResetTimer  = "host:resetTimer"
)

// Outbound event names.
const (
	EventInit           = "init"
	EventSlideChanged   = "slideChanged"
	EventTimerUpdate    = "timerUpdate"
	EventSlidesUpdated  = "slidesUpdated"
	EventLoginResult    = "host:loginResult"
	EventSessionExpired = "host:sessionExpired"
)

// LoginRequest is the payload of a host:login command.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the payload of a host:loginResult event.
type LoginResult struct {
	OK bool `json:"ok"`
}

// NewMessage builds an outbound message, marshaling the payload. A nil
// payload produces an event with no data.
func NewMessage(event string, payload any) (Message, error) {
	msg := Message{Event: event}
	if payload == nil {
		return msg, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	msg.Data = data
	return msg, nil
}
