package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"leadbridge/internal/entities"
	"leadbridge/internal/infrastructure"
	"leadbridge/internal/interfaces"
)

// StateMachine drives the per-user dialogue: the guided lead-capture flow on
// the bot channel and free-form AI replies everywhere else.
type StateMachine struct {
	store      interfaces.ConversationStore
	sessions   *infrastructure.SessionManager
	mediator   *ReplyMediator
	dispatcher *Dispatcher
	turns      *TurnLogger
	newID      func() string
	now        func() time.Time
	logger     *slog.Logger
}

func NewStateMachine(store interfaces.ConversationStore, sessions *infrastructure.SessionManager, mediator *ReplyMediator, dispatcher *Dispatcher, turns *TurnLogger, logger *slog.Logger) *StateMachine {
	return &StateMachine{
		store:      store,
		sessions:   sessions,
		mediator:   mediator,
		dispatcher: dispatcher,
		turns:      turns,
		newID:      uuid.NewString,
		now:        time.Now,
		logger:     logger.With("component", "state_machine"),
	}
}

// Handle applies one inbound message. Messages for the same (channel, user)
// are processed one at a time.
func (sm *StateMachine) Handle(ctx context.Context, msg entities.InboundMessage) {
	unlock := sm.sessions.Lock(string(msg.Channel) + ":" + msg.UserID)
	defer unlock()

	stored, err := sm.store.LoadState(ctx, msg.Channel, msg.UserID)
	if err != nil {
		sm.logger.Error("loading state failed", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
		return
	}

	switch msg.Command {
	case "", entities.CommandStart:
	case entities.CommandCancel:
		if stored == nil || stored.Phase.Terminal() {
			sm.logger.Debug("cancel outside an active conversation ignored", "user_id", msg.UserID)
			return
		}
	default:
		sm.logger.Debug("unknown command ignored", "command", msg.Command, "user_id", msg.UserID)
		return
	}

	state := sm.begin(stored, msg)
	switch {
	case msg.Command == entities.CommandStart:
		sm.start(ctx, state, msg)
	case msg.Command == entities.CommandCancel:
		sm.cancel(ctx, state, msg)
	case !msg.HasText():
		sm.turns.Log(ctx, state, msg, entities.RoleUser, fmt.Sprintf("[unhandled %s message]", msg.Type))
	case msg.Channel == entities.ChannelTelegram && state.Phase.Guided():
		sm.advance(ctx, state, msg)
	default:
		sm.freeText(ctx, state, msg)
	}

	sm.persist(ctx, state, msg)
}

// begin returns the state to mutate: the stored one while a conversation is
// open, otherwise a fresh conversation. Lead fields survive a completed
// conversation so later replies keep their context.
func (sm *StateMachine) begin(stored *entities.ConversationState, msg entities.InboundMessage) *entities.ConversationState {
	if stored != nil && !stored.Phase.Terminal() {
		return stored
	}
	state := &entities.ConversationState{
		Channel:        msg.Channel,
		UserID:         msg.UserID,
		ConversationID: sm.newID(),
		Phase:          entities.PhaseNew,
	}
	if stored != nil && stored.Phase == entities.PhaseCompleted {
		state.CollectedName = stored.CollectedName
		state.CollectedPhone = stored.CollectedPhone
		state.CollectedQuestion = stored.CollectedQuestion
	}
	return state
}

func (sm *StateMachine) start(ctx context.Context, state *entities.ConversationState, msg entities.InboundMessage) {
	if len(state.Transcript) > 0 || state.Phase != entities.PhaseNew {
		state.ConversationID = sm.newID()
		state.Transcript = nil
	}
	state.ClearCollected()

	sm.turns.Log(ctx, state, msg, entities.RoleUser, msg.Text)
	sm.say(ctx, state, msg, GreetingText)
	state.Phase = entities.PhaseAwaitName
}

func (sm *StateMachine) cancel(ctx context.Context, state *entities.ConversationState, msg entities.InboundMessage) {
	sm.turns.Log(ctx, state, msg, entities.RoleUser, msg.Text)

	var abandoned *entities.LeadRecord
	if state.Phase.Guided() {
		lead := sm.leadRecord(state, msg, entities.LeadCancelled)
		abandoned = &lead
	}
	state.ClearCollected()

	sm.say(ctx, state, msg, CancelledText)
	state.Phase = entities.PhaseCancelled

	if abandoned != nil {
		sm.dispatcher.SendApplication(ctx, RenderLeadRecord(*abandoned))
	}
}

func (sm *StateMachine) advance(ctx context.Context, state *entities.ConversationState, msg entities.InboundMessage) {
	sm.turns.Log(ctx, state, msg, entities.RoleUser, msg.Text)
	text := strings.TrimSpace(msg.Text)

	switch state.Phase {
	case entities.PhaseAwaitName:
		state.CollectedName = text
		sm.say(ctx, state, msg, PhonePromptText)
		state.Phase = entities.PhaseAwaitPhone

	case entities.PhaseAwaitPhone:
		if utf8.RuneCountInString(text) < minPhoneLength {
			sm.say(ctx, state, msg, PhoneTooShortText)
			return
		}
		state.CollectedPhone = text
		sm.say(ctx, state, msg, QuestionPromptText)
		state.Phase = entities.PhaseAwaitQuestion

	case entities.PhaseAwaitQuestion:
		state.CollectedQuestion = text
		sm.say(ctx, state, msg, LeadAcceptedText)
		sm.dispatcher.SendApplication(ctx, RenderLeadRecord(sm.leadRecord(state, msg, entities.LeadCompleted)))

		if reply, ok := sm.mediator.Reply(ctx, sm.customerName(state, msg), text, leadContext(state)); ok {
			sm.say(ctx, state, msg, reply)
		}
		state.Phase = entities.PhaseCompleted
	}
}

func (sm *StateMachine) freeText(ctx context.Context, state *entities.ConversationState, msg entities.InboundMessage) {
	text := strings.TrimSpace(msg.Text)
	sm.turns.Log(ctx, state, msg, entities.RoleUser, text)

	reply, ok := sm.mediator.Reply(ctx, sm.customerName(state, msg), text, leadContext(state))
	if ok {
		if sm.say(ctx, state, msg, reply) && msg.Channel == entities.ChannelWhatsApp {
			sm.dispatcher.ForwardToOperator(ctx, RenderAutoReplyNotice(reply))
		}
		return
	}

	// The webhook channel stays silent when there is nothing automated to say.
	if msg.Channel == entities.ChannelTelegram {
		sm.say(ctx, state, msg, FallbackText)
	}
}

// say delivers a bot turn to the customer and logs it once delivered.
func (sm *StateMachine) say(ctx context.Context, state *entities.ConversationState, msg entities.InboundMessage, text string) bool {
	if !sm.dispatcher.ReplyToCustomer(ctx, msg.Channel, msg.ReplyTo, text) {
		return false
	}
	sm.turns.Log(ctx, state, msg, entities.RoleBot, text)
	return true
}

func (sm *StateMachine) persist(ctx context.Context, state *entities.ConversationState, msg entities.InboundMessage) {
	state.UpdatedAt = sm.now()
	if err := sm.store.SaveState(ctx, state); err != nil {
		sm.logger.Error("saving state failed", "channel", state.Channel, "user_id", state.UserID, "error", err)
	}

	if msg.Channel != entities.ChannelWhatsApp {
		return
	}
	profile := entities.ClientProfile{
		Channel:         msg.Channel,
		UserID:          msg.UserID,
		Name:            entities.StringPtr(msg.SenderDisplayName),
		Phone:           entities.StringPtr(msg.UserID),
		ProfileMetadata: msg.ProfileMetadata,
		UpdatedAt:       state.UpdatedAt,
	}
	if err := sm.store.SaveClient(ctx, profile); err != nil {
		sm.logger.Error("saving client failed", "user_id", msg.UserID, "error", err)
	}
}

func (sm *StateMachine) customerName(state *entities.ConversationState, msg entities.InboundMessage) string {
	if state.CollectedName != "" {
		return state.CollectedName
	}
	return msg.SenderDisplayName
}

func (sm *StateMachine) leadRecord(state *entities.ConversationState, msg entities.InboundMessage, status entities.LeadStatus) entities.LeadRecord {
	return entities.LeadRecord{
		Status:         status,
		ConversationID: state.ConversationID,
		Channel:        state.Channel,
		UserID:         state.UserID,
		Username:       msg.Username,
		DisplayName:    msg.SenderDisplayName,
		Name:           state.CollectedName,
		Phone:          state.CollectedPhone,
		Question:       state.CollectedQuestion,
		Transcript:     append([]entities.Turn(nil), state.Transcript...),
	}
}

func leadContext(state *entities.ConversationState) LeadContext {
	return LeadContext{
		Name:     state.CollectedName,
		Phone:    state.CollectedPhone,
		Question: state.CollectedQuestion,
	}
}
