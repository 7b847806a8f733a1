package usecases

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"leadbridge/internal/entities"
)

// Customer-facing texts of the guided flow.
const (
	GreetingText       = "Hi! I will pass your request on to a manager.\nWhat is your name?"
	PhonePromptText    = "Great. Please leave a phone number we can reach you on."
	PhoneTooShortText  = "That number looks too short. Please enter the full number."
	QuestionPromptText = "Briefly describe your question or task."
	LeadAcceptedText   = "Thank you! I am passing your request to a manager. Feel free to ask more questions, I will try to help."
	CancelledText      = "OK, the request is cancelled. If you change your mind, send /start."
	FallbackText       = "Thank you! I will pass your question on to a manager. Send /start if you need a new request."

	AnalyticsFallbackText = "Could not get a response from the model."
)

const (
	maxMessageLength    = 4096
	maxTranscriptLength = 4000
	maxSummaryLength    = 4000
	minPhoneLength      = 5
)

// RenderOperatorForward formats a webhook message for the operator chat.
func RenderOperatorForward(msg entities.InboundMessage) string {
	var body string
	switch msg.Kind {
	case entities.KindText:
		body = msg.Text
	case entities.KindInteractiveChoice:
		label := "Button reply"
		if msg.Type == "list_reply" {
			label = "List reply"
		}
		body = fmt.Sprintf("%s: %s (id: %s)", label, msg.Text, msg.OptionID)
	default:
		body = fmt.Sprintf("%s message received (not forwarded in detail).", msg.Type)
	}

	header := msg.SenderDisplayName
	if header == "" {
		header = "Unknown contact"
	}
	return fmt.Sprintf("WhatsApp message from %s (%s):\n%s", header, msg.UserID, body)
}

// RenderAutoReplyNotice tells the operator what was sent to the customer.
func RenderAutoReplyNotice(reply string) string {
	return "🤖 Reply sent to customer:\n" + reply
}

func RenderLogPreview(at time.Time, displayName, userID string, role entities.Role, text string) string {
	return fmt.Sprintf("[%s] %s (%s)\n%s: %s", at.UTC().Format(time.RFC3339), displayName, userID, role, text)
}

// RenderTranscript lists turns as "role: text" lines, keeping only the tail.
func RenderTranscript(turns []entities.Turn) string {
	if len(turns) == 0 {
		return "—"
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Text))
	}
	return tailRunes(strings.Join(lines, "\n"), maxTranscriptLength)
}

func RenderLeadRecord(lead entities.LeadRecord) string {
	title := "New lead 📋"
	if lead.Status == entities.LeadCancelled {
		title = "Cancelled lead ❌"
	}
	username := lead.Username
	if username == "" {
		username = "none"
	}

	var sb strings.Builder
	sb.WriteString(title + "\n")
	fmt.Fprintf(&sb, "Name: %s\n", orDash(lead.Name))
	fmt.Fprintf(&sb, "Phone: %s\n", orDash(lead.Phone))
	fmt.Fprintf(&sb, "Request: %s\n", orDash(lead.Question))
	if lead.Channel == entities.ChannelTelegram {
		fmt.Fprintf(&sb, "Telegram: @%s (id %s)\n", username, lead.UserID)
	} else {
		fmt.Fprintf(&sb, "%s: %s (id %s)\n", lead.Channel, orDash(lead.DisplayName), lead.UserID)
	}
	fmt.Fprintf(&sb, "Conversation:\n%s", RenderTranscript(lead.Transcript))
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

// truncateRunes keeps at most n runes from the start of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// tailRunes keeps at most n runes from the end of s.
func tailRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}
