package usecases

import (
	"encoding/json"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"leadbridge/internal/entities"
)

// Webhook payload shapes. Only what the normalizer reads is modelled. Each
// level is decoded on its own so a malformed entry, change, list or message
// is skipped without discarding its siblings.
type waWebhook struct {
	Entry []json.RawMessage `json:"entry"`
}

type waEntry struct {
	Changes []json.RawMessage `json:"changes"`
}

type waChange struct {
	Value json.RawMessage `json:"value"`
}

type waValue struct {
	Contacts json.RawMessage `json:"contacts"`
	Messages json.RawMessage `json:"messages"`
}

type waContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type waReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type waMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string   `json:"type"`
		ButtonReply *waReply `json:"button_reply"`
		ListReply   *waReply `json:"list_reply"`
	} `json:"interactive"`
}

type contactInfo struct {
	name string
	raw  json.RawMessage
}

// NormalizeWebhook flattens a WhatsApp Cloud API delivery into canonical
// messages in payload order. A malformed envelope yields nil.
func NormalizeWebhook(payload []byte) []entities.InboundMessage {
	var hook waWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil
	}

	var out []entities.InboundMessage
	for _, rawEntry := range hook.Entry {
		var entry waEntry
		if err := json.Unmarshal(rawEntry, &entry); err != nil {
			continue
		}
		for _, rawChange := range entry.Changes {
			var change waChange
			if err := json.Unmarshal(rawChange, &change); err != nil {
				continue
			}
			var value waValue
			if err := json.Unmarshal(change.Value, &value); err != nil {
				continue
			}
			// Names only travel in the contact list of the same change.
			contacts := buildContactIndex(rawList(value.Contacts))
			for _, rawMsg := range rawList(value.Messages) {
				msg, ok := normalizeWhatsAppMessage(rawMsg, contacts)
				if ok {
					out = append(out, msg)
				}
			}
		}
	}
	return out
}

// rawList splits a JSON array into its elements. Anything else is empty.
func rawList(raw json.RawMessage) []json.RawMessage {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	return list
}

func buildContactIndex(raw []json.RawMessage) map[string]contactInfo {
	index := make(map[string]contactInfo, len(raw))
	for _, r := range raw {
		var c waContact
		if err := json.Unmarshal(r, &c); err != nil || c.WaID == "" {
			continue
		}
		index[c.WaID] = contactInfo{name: c.Profile.Name, raw: r}
	}
	return index
}

func normalizeWhatsAppMessage(raw json.RawMessage, contacts map[string]contactInfo) (entities.InboundMessage, bool) {
	var m waMessage
	if err := json.Unmarshal(raw, &m); err != nil || m.From == "" {
		return entities.InboundMessage{}, false
	}

	contact := contacts[m.From]
	msg := entities.InboundMessage{
		Channel:           entities.ChannelWhatsApp,
		UserID:            m.From,
		ReplyTo:           m.From,
		SenderDisplayName: contact.name,
		Kind:              entities.KindOther,
		Type:              m.Type,
		ProfileMetadata:   contact.raw,
		Raw:               raw,
	}
	if msg.Type == "" {
		msg.Type = "unknown"
	}

	switch m.Type {
	case "text":
		if m.Text != nil && m.Text.Body != "" {
			msg.Kind = entities.KindText
			msg.Text = m.Text.Body
		}
	case "interactive":
		if m.Interactive == nil {
			break
		}
		var reply *waReply
		switch m.Interactive.Type {
		case "button_reply":
			reply = m.Interactive.ButtonReply
		case "list_reply":
			reply = m.Interactive.ListReply
		}
		if reply != nil && reply.Title != "" {
			msg.Kind = entities.KindInteractiveChoice
			msg.Type = m.Interactive.Type
			msg.Text = reply.Title
			msg.OptionID = reply.ID
		}
	}
	return msg, true
}

// NormalizeTelegramUpdate maps a bot update to a canonical message. Updates
// without a user-authored message are skipped.
func NormalizeTelegramUpdate(update tgbotapi.Update) (entities.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return entities.InboundMessage{}, false
	}

	msg := entities.InboundMessage{
		Channel:           entities.ChannelTelegram,
		UserID:            strconv.FormatInt(m.From.ID, 10),
		ReplyTo:           strconv.FormatInt(m.Chat.ID, 10),
		SenderDisplayName: strings.TrimSpace(m.From.FirstName + " " + m.From.LastName),
		Username:          m.From.UserName,
		Kind:              entities.KindOther,
		Type:              telegramMessageType(m),
	}
	if raw, err := json.Marshal(m); err == nil {
		msg.Raw = raw
	}

	if strings.TrimSpace(m.Text) != "" {
		msg.Kind = entities.KindText
		msg.Text = m.Text
		if m.IsCommand() {
			msg.Command = strings.ToLower(m.Command())
		}
	}
	return msg, true
}

func telegramMessageType(m *tgbotapi.Message) string {
	switch {
	case m.Text != "":
		return "text"
	case m.Photo != nil:
		return "photo"
	case m.Sticker != nil:
		return "sticker"
	case m.Animation != nil:
		return "animation"
	case m.Document != nil:
		return "document"
	case m.Voice != nil:
		return "voice"
	case m.VideoNote != nil:
		return "video_note"
	case m.Video != nil:
		return "video"
	case m.Audio != nil:
		return "audio"
	case m.Contact != nil:
		return "contact"
	case m.Location != nil:
		return "location"
	default:
		return "unknown"
	}
}
