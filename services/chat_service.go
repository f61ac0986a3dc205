package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"spark_server/models"
	"spark_server/storage"
)

type messageInput struct {
	Content string `validate:"required,max=2000"`
}

// MessageService handles conversations inside a live match.
type MessageService struct {
	store    storage.Store
	matches  *MatchService
	profiles *ProfileService
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewMessageService(store storage.Store, matches *MatchService, profiles *ProfileService, logger *slog.Logger) *MessageService {
	return &MessageService{
		store:    store,
		matches:  matches,
		profiles: profiles,
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

// SendMessage appends content to the match's conversation as sender.
func (s *MessageService) SendMessage(ctx context.Context, matchID, sender, content string) (*models.MessageWithSender, error) {
	match, err := s.matches.Get(ctx, matchID, sender)
	if err != nil {
		return nil, err
	}
	state, err := s.store.PairState(ctx, match.UserA, match.UserB)
	if err != nil {
		return nil, err
	}
	if state.Blocked() {
		return nil, fmt.Errorf("%w: participants of match %s", models.ErrBlocked, matchID)
	}

	content = strings.TrimSpace(content)
	if err := s.validate.Struct(messageInput{Content: content}); err != nil {
		return nil, validationError(err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	msg := models.Message{
		ID:        id.String(),
		MatchID:   match.ID,
		Sender:    sender,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	err = retryOnConflict(ctx, s.logger, "send message", func() error {
		return s.store.AppendMessage(ctx, *match, msg)
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "message sent", "match_id", matchID, "sender", sender, "message_id", msg.ID)

	out := &models.MessageWithSender{Message: msg}
	summaries, err := s.profiles.Summaries(ctx, []string{sender})
	if err != nil {
		s.logger.WarnContext(ctx, "sender lookup failed", "user_id", sender, "error", err)
		return out, nil
	}
	out.SenderDisplayName = summaries[sender].DisplayName
	return out, nil
}

// ListForMatch returns the conversation oldest first, each message tagged
// with its sender's display name.
func (s *MessageService) ListForMatch(ctx context.Context, matchID, user string, req models.PageRequest) (models.Page[models.MessageWithSender], error) {
	match, err := s.matches.Get(ctx, matchID, user)
	if err != nil {
		return models.Page[models.MessageWithSender]{}, err
	}
	msgs, err := s.store.ListMessages(ctx, match.ID)
	if err != nil {
		return models.Page[models.MessageWithSender]{}, err
	}
	page := models.Paginate(msgs, req)

	summaries, err := s.profiles.Summaries(ctx, []string{match.UserA, match.UserB})
	if err != nil {
		return models.Page[models.MessageWithSender]{}, err
	}
	results := make([]models.MessageWithSender, 0, len(page.Results))
	for _, m := range page.Results {
		results = append(results, models.MessageWithSender{
			Message:           m,
			SenderDisplayName: summaries[m.Sender].DisplayName,
		})
	}
	return models.Remap(page, results), nil
}

// MarkRead flags the counterpart's messages in the match as read by reader.
func (s *MessageService) MarkRead(ctx context.Context, matchID, reader string) (int, error) {
	match, err := s.matches.Get(ctx, matchID, reader)
	if err != nil {
		return 0, err
	}
	updated, err := s.store.MarkMessagesRead(ctx, match.ID, reader)
	if err != nil {
		return 0, err
	}
	s.logger.DebugContext(ctx, "messages marked read", "match_id", matchID, "reader", reader, "updated", updated)
	return updated, nil
}
