package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-insights/internal/models"
)

const notificationOperation = "notification"

// ErrNotifierDisabled is returned when no bot token or chat is configured.
var ErrNotifierDisabled = errors.New("recommendation notifier is disabled")

// MessageSender is the part of the Telegram bot the notifier needs.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// RecommendationNotifier pushes high-priority recommendations to a Telegram
// chat.
type RecommendationNotifier struct {
	sender MessageSender
	chatID int64
	erm    *ErrorRecoveryManager
	logger *logrus.Logger
}

// NewTelegramNotifier creates a notifier backed by a Telegram bot. It
// returns ErrNotifierDisabled when token or chatID is empty.
func NewTelegramNotifier(token string, chatID int64, logger *logrus.Logger) (*RecommendationNotifier, error) {
	if token == "" || chatID == 0 {
		return nil, ErrNotifierDisabled
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewRecommendationNotifier(b, chatID, logger), nil
}

// NewRecommendationNotifier creates a notifier around any sender.
func NewRecommendationNotifier(sender MessageSender, chatID int64, logger *logrus.Logger) *RecommendationNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	erm := NewErrorRecoveryManager(logger)
	erm.RegisterRetryPolicy(notificationOperation, DefaultRetryPolicies()[notificationOperation])
	return &RecommendationNotifier{
		sender: sender,
		chatID: chatID,
		erm:    erm,
		logger: logger,
	}
}

// NotifyRecommendations sends one message listing recs.
func (n *RecommendationNotifier) NotifyRecommendations(ctx context.Context, userID string, recs []models.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	text := FormatRecommendations(userID, recs)

	result := n.erm.ExecuteWithRetry(ctx, notificationOperation, func(ctx context.Context, attempt int) error {
		_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    n.chatID,
			Text:      text,
			ParseMode: tgmodels.ParseModeMarkdown,
		})
		return err
	})
	if !result.Success {
		return fmt.Errorf("failed to send telegram message: %w", result.Error)
	}

	n.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"count":    len(recs),
		"attempts": result.Attempts,
	}).Info("Sent recommendation notification")
	return nil
}

// FormatRecommendations renders recs as a MarkdownV2 message.
func FormatRecommendations(userID string, recs []models.Recommendation) string {
	var sb strings.Builder
	sb.WriteString("*")
	sb.WriteString(bot.EscapeMarkdown(fmt.Sprintf("%d high priority recommendation(s) for %s", len(recs), userID)))
	sb.WriteString("*\n")
	for i, r := range recs {
		sb.WriteString("\n")
		sb.WriteString(bot.EscapeMarkdown(fmt.Sprintf("%d. ", i+1)))
		sb.WriteString("*")
		sb.WriteString(bot.EscapeMarkdown(r.Title))
		sb.WriteString("*\n")
		sb.WriteString(bot.EscapeMarkdown(fmt.Sprintf("%s | confidence %.0f%% | likely %s impact %.2f",
			r.Domain, r.Confidence*100, r.Impact.ImpactType, r.Impact.LikelyCase)))
		sb.WriteString("\n")
		if len(r.Actions) > 0 {
			sb.WriteString(bot.EscapeMarkdown("Next: " + r.Actions[0].Description))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
