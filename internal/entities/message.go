package entities

import "encoding/json"

type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp" // webhook-delivered
	ChannelTelegram Channel = "telegram" // bot-polled
)

type MessageKind string

const (
	KindText              MessageKind = "TEXT"
	KindInteractiveChoice MessageKind = "INTERACTIVE_CHOICE"
	KindOther             MessageKind = "OTHER"
)

// Bot-side commands recognised by the conversation flow.
const (
	CommandStart  = "start"
	CommandCancel = "cancel"
)

// InboundMessage is the canonical shape every channel payload is normalized into.
// Text is set whenever Kind is KindText or KindInteractiveChoice and empty otherwise.
type InboundMessage struct {
	Channel           Channel
	UserID            string
	ReplyTo           string // channel address for replies (chat id / wa_id)
	SenderDisplayName string
	Username          string // bot channel handle, without "@"
	Kind              MessageKind
	Text              string
	Type              string // channel message type, e.g. "text", "button_reply", "image"
	OptionID          string // selected option id for interactive choices
	Command           string // bot command name without slash, e.g. "start"
	ProfileMetadata   json.RawMessage
	Raw               json.RawMessage
}

// HasText reports whether the message carries text the flow can act on.
func (m InboundMessage) HasText() bool {
	return m.Kind == KindText || m.Kind == KindInteractiveChoice
}

// ChatMessage is one turn of a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
