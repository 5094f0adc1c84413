package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-insights/internal/models"
	"github.com/irfndi/celebrum-insights/internal/utils"
)

type MockMessageSender struct {
	mock.Mock
}

func (m *MockMessageSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*tgmodels.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func sampleRecommendations() []models.Recommendation {
	return []models.Recommendation{
		{
			ID:         "r1",
			Domain:     models.DomainInventory,
			Category:   models.CategoryStockoutRisk,
			Title:      "Reorder Winter Boots",
			Confidence: 0.91,
			Priority:   models.PriorityHigh,
			Impact:     models.ImpactAssessment{ImpactType: models.ImpactRevenue, LikelyCase: 1250},
			Actions:    []models.ActionStep{{Order: 1, Description: "Place a replenishment order"}},
		},
		{
			ID:         "r2",
			Domain:     models.DomainFinance,
			Category:   models.CategoryCashFlowRisk,
			Title:      "Protect Cash Runway",
			Confidence: 0.8,
			Priority:   models.PriorityHigh,
			Impact:     models.ImpactAssessment{ImpactType: models.ImpactCost, LikelyCase: 600},
		},
	}
}

func TestNotifyRecommendations_SendsOneMessage(t *testing.T) {
	sender := new(MockMessageSender)
	sender.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *bot.SendMessageParams) bool {
		return p.ChatID == int64(42) &&
			p.ParseMode == tgmodels.ParseModeMarkdown &&
			strings.Contains(p.Text, "Reorder Winter Boots") &&
			strings.Contains(p.Text, "Protect Cash Runway")
	})).Return(&tgmodels.Message{ID: 1}, nil).Once()

	n := NewRecommendationNotifier(sender, 42, quietLogger())
	err := n.NotifyRecommendations(context.Background(), "u1", sampleRecommendations())
	require.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestNotifyRecommendations_NothingToSend(t *testing.T) {
	sender := new(MockMessageSender)
	n := NewRecommendationNotifier(sender, 42, quietLogger())

	require.NoError(t, n.NotifyRecommendations(context.Background(), "u1", nil))
	sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestNotifyRecommendations_PermanentErrorIsNotRetried(t *testing.T) {
	sender := new(MockMessageSender)
	sender.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("chat not found")).Once()

	n := NewRecommendationNotifier(sender, 42, quietLogger())
	err := n.NotifyRecommendations(context.Background(), "u1", sampleRecommendations())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
	sender.AssertNumberOfCalls(t, "SendMessage", 1)
}

func TestNotifyRecommendations_RetriesTransientError(t *testing.T) {
	sender := new(MockMessageSender)
	sender.On("SendMessage", mock.Anything, mock.Anything).Return(nil, utils.Transient(errors.New("timeout"))).Once()
	sender.On("SendMessage", mock.Anything, mock.Anything).Return(&tgmodels.Message{ID: 2}, nil).Once()

	n := NewRecommendationNotifier(sender, 42, quietLogger())
	require.NoError(t, n.NotifyRecommendations(context.Background(), "u1", sampleRecommendations()))
	sender.AssertNumberOfCalls(t, "SendMessage", 2)
}

func TestNewTelegramNotifier_Disabled(t *testing.T) {
	_, err := NewTelegramNotifier("", 42, nil)
	assert.ErrorIs(t, err, ErrNotifierDisabled)

	_, err = NewTelegramNotifier("123:abc", 0, nil)
	assert.ErrorIs(t, err, ErrNotifierDisabled)
}

func TestFormatRecommendations(t *testing.T) {
	text := FormatRecommendations("u1", sampleRecommendations())

	assert.True(t, strings.HasPrefix(text, "*2 high priority recommendation\\(s\\) for u1*\n"))
	assert.Contains(t, text, "1\\. *Reorder Winter Boots*")
	assert.Contains(t, text, "2\\. *Protect Cash Runway*")
	assert.Contains(t, text, "inventory \\| confidence 91% \\| likely revenue impact 1250\\.00")
	assert.Contains(t, text, "Next: Place a replenishment order")
	assert.Equal(t, 1, strings.Count(text, "Next:"))
}
