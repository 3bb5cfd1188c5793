package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/funnel"
	"github.com/m3rciful/funnelbot/funnel/chat"
)

type dialogueStep string

const (
	stepAwaitingPassword dialogueStep = "awaiting_password"
	stepAwaitingLink     dialogueStep = "awaiting_course_link"
)

type session struct {
	requestID string
	step      dialogueStep
	password  string
}

// Dialogue runs the two-step operator grant: password, then access link.
type Dialogue struct {
	mu       sync.Mutex
	sessions map[int64]session

	store       *Store
	chat        chat.Messenger
	isOperator  func(int64) bool
	channelLink string
	texts       Texts
}

// DialogueOptions configures NewDialogue.
type DialogueOptions struct {
	IsOperator  func(int64) bool
	ChannelLink string
	Texts       Texts
}

// NewDialogue wires the grant dialogue. A nil IsOperator rejects everyone.
func NewDialogue(store *Store, messenger chat.Messenger, opts DialogueOptions) *Dialogue {
	isOp := opts.IsOperator
	if isOp == nil {
		isOp = func(int64) bool { return false }
	}
	return &Dialogue{
		sessions:    make(map[int64]session),
		store:       store,
		chat:        messenger,
		isOperator:  isOp,
		channelLink: opts.ChannelLink,
		texts:       opts.Texts.withDefaults(),
	}
}

// Begin starts a dialogue for requestID, replacing any previous one of the operator.
func (d *Dialogue) Begin(ctx context.Context, operatorID int64, requestID string) error {
	ctx = logger.WithAccessRequest(ctx, requestID)
	if !d.isOperator(operatorID) {
		logger.Warn(ctx, logger.CompAccess, "access.denied", slog.Int64("operator_id", operatorID))
		_ = d.chat.SendText(ctx, operatorID, d.texts.OperatorOnly, nil)
		return &funnel.UnauthorizedActionError{Action: GrantAction, ActorID: operatorID}
	}
	if _, err := d.store.Check(requestID); err != nil {
		return d.shortCircuit(ctx, operatorID, err)
	}

	d.mu.Lock()
	d.sessions[operatorID] = session{requestID: requestID, step: stepAwaitingPassword}
	d.mu.Unlock()

	logger.Info(ctx, logger.CompAccess, "access.dialogue_begin", slog.Int64("operator_id", operatorID))
	return d.chat.SendText(ctx, operatorID, d.texts.AskPassword, nil)
}

// Active reports whether operatorID is in the middle of a dialogue.
func (d *Dialogue) Active(operatorID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.sessions[operatorID]
	return ok
}

// Input feeds one text message of the operator. handled is false when the
// sender has no dialogue in progress.
func (d *Dialogue) Input(ctx context.Context, operatorID int64, text string) (bool, error) {
	if !d.isOperator(operatorID) {
		return false, nil
	}
	d.mu.Lock()
	sess, ok := d.sessions[operatorID]
	d.mu.Unlock()
	if !ok {
		return false, nil
	}
	ctx = logger.WithAccessRequest(ctx, sess.requestID)
	value := strings.TrimSpace(text)

	if _, err := d.store.Check(sess.requestID); err != nil {
		d.clear(operatorID)
		return true, d.shortCircuit(ctx, operatorID, err)
	}

	if sess.step == stepAwaitingPassword {
		d.mu.Lock()
		d.sessions[operatorID] = session{requestID: sess.requestID, step: stepAwaitingLink, password: value}
		d.mu.Unlock()
		return true, d.chat.SendText(ctx, operatorID, d.texts.AskLink, nil)
	}

	req, err := d.store.MarkIssued(sess.requestID)
	if err != nil {
		d.clear(operatorID)
		return true, d.shortCircuit(ctx, operatorID, err)
	}
	if err := d.deliver(ctx, req, sess.password, value); err != nil {
		d.store.Release(req.ID)
		logger.Warn(ctx, logger.CompAccess, "access.deliver_failed",
			slog.String("status", "fail"),
			slog.Int64("user_id", req.UserID),
			logger.Err(err),
		)
		_ = d.chat.SendText(ctx, operatorID, fmt.Sprintf(d.texts.DeliveryFailed, req.UserID), nil)
		return true, err
	}
	d.clear(operatorID)

	logger.Info(ctx, logger.CompAccess, "access.issued",
		slog.String("status", "ok"),
		slog.String("flow", string(req.Flow)),
		slog.Int64("operator_id", operatorID),
	)
	return true, d.chat.SendText(ctx, operatorID, fmt.Sprintf(d.texts.Granted, req.UserID), nil)
}

func (d *Dialogue) deliver(ctx context.Context, req Request, password, link string) error {
	text := fmt.Sprintf(d.texts.UserCredentials, req.Email, password, link)
	if err := d.chat.SendText(ctx, req.UserID, text, nil); err != nil {
		return &funnel.NotificationDeliveryError{RecipientID: req.UserID, Role: funnel.RoleUser, Err: err}
	}
	if d.channelLink == "" {
		return nil
	}
	kb := chat.Row(chat.Button{Text: d.texts.ChannelButton, URL: d.channelLink})
	if err := d.chat.SendText(ctx, req.UserID, d.texts.UserChat, kb); err != nil {
		// Credentials are already with the user.
		logger.Warn(ctx, logger.CompAccess, "access.channel_link_failed", logger.Err(err))
	}
	return nil
}

func (d *Dialogue) shortCircuit(ctx context.Context, operatorID int64, err error) error {
	text := d.texts.NotFound
	outcome := "not_found"
	if errors.Is(err, ErrAlreadyIssued) {
		text = d.texts.AlreadyIssued
		outcome = "already_processed"
	}
	logger.Info(ctx, logger.CompAccess, "access.short_circuit", slog.String("outcome", outcome))
	return d.chat.SendText(ctx, operatorID, text, nil)
}

func (d *Dialogue) clear(operatorID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, operatorID)
}
