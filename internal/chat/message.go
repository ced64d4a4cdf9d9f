package chat

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyrelay/hyrelay/internal/config"
	"github.com/hyrelay/hyrelay/internal/mcwire"
)

// Chat channel ids on the client. Overlay lines use the chat channel; latency
// alerts use the system channel so they do not pollute chat history.
const (
	ChannelChat   = 1
	ChannelSystem = 2
)

var ErrMalformedPayload = errors.New("malformed chat payload")

// inboundPayload is the shape of a chat frame's data in either direction: the
// message field holds either plain command text (client) or a JSON-encoded
// rich-text tree (server).
type inboundPayload struct {
	Message string `json:"message"`
}

// MessageText returns the raw message field of a chat frame.
func MessageText(data json.RawMessage) (string, error) {
	var p inboundPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return p.Message, nil
}

// ExtractServerText parses a server chat frame's rich-text message and
// flattens it to plain text.
func ExtractServerText(data json.RawMessage) (string, error) {
	msg, err := MessageText(data)
	if err != nil {
		return "", err
	}
	var node Node
	if err := json.Unmarshal([]byte(msg), &node); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return ExtractText(&node), nil
}

type outboundMessage struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

type outboundPayload struct {
	Message  string `json:"message"`
	Position int    `json:"position"`
}

// Overlay builds the synthetic chat frames the relay injects toward the
// client.
type Overlay struct {
	cfg *config.Store
}

func NewOverlay(cfg *config.Store) *Overlay {
	return &Overlay{cfg: cfg}
}

// Frame renders text into a chat frame for the given channel, applying the
// configured tag prefix when enabled.
func (o *Overlay) Frame(text string, position int) (*mcwire.Frame, error) {
	body := "§7"
	if o.cfg.Bool("show_tag") {
		if tag := o.cfg.Str("tag"); tag != "" {
			body += "[" + tag + "] "
		}
	}
	body += text

	msg, err := json.Marshal(outboundMessage{Text: body, Color: "white"})
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(outboundPayload{Message: string(msg), Position: position})
	if err != nil {
		return nil, err
	}
	return &mcwire.Frame{Name: mcwire.FrameChat, State: mcwire.StatePlay, Data: data}, nil
}

// CommandFrame builds a plain outbound chat frame toward the target, used for
// the automatic /who query.
func CommandFrame(text string) (*mcwire.Frame, error) {
	data, err := json.Marshal(inboundPayload{Message: text})
	if err != nil {
		return nil, err
	}
	return &mcwire.Frame{Name: mcwire.FrameChat, State: mcwire.StatePlay, Data: data}, nil
}
