package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-insights/internal/config"
)

// MockBot is a mock implementation of the telegram bot
type MockBot struct {
	mock.Mock
}

func (m *MockBot) GetMe(ctx context.Context) (*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockBot) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestValidate_ConnectionOnly(t *testing.T) {
	client := new(MockBot)
	client.On("GetMe", mock.Anything).Return(&models.User{ID: 7, Username: "insights_bot"}, nil)

	var out bytes.Buffer
	err := validate(context.Background(), &out, config.TelegramConfig{BotToken: "123:abc", ChatID: 99}, client, false, discardLogger())
	require.NoError(t, err)

	assert.Contains(t, out.String(), "length: 7")
	assert.Contains(t, out.String(), "@insights_bot (id 7)")
	assert.Contains(t, out.String(), "TELEGRAM_CHAT_ID is configured: 99")
	client.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestValidate_MissingChatID(t *testing.T) {
	client := new(MockBot)
	client.On("GetMe", mock.Anything).Return(&models.User{ID: 7, Username: "insights_bot"}, nil)

	var out bytes.Buffer
	err := validate(context.Background(), &out, config.TelegramConfig{BotToken: "123:abc"}, client, false, discardLogger())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "TELEGRAM_CHAT_ID is not configured")

	err = validate(context.Background(), &out, config.TelegramConfig{BotToken: "123:abc"}, client, true, discardLogger())
	assert.Error(t, err)
}

func TestValidate_GetMeFails(t *testing.T) {
	client := new(MockBot)
	client.On("GetMe", mock.Anything).Return(nil, errors.New("unauthorized"))

	err := validate(context.Background(), io.Discard, config.TelegramConfig{BotToken: "bad", ChatID: 99}, client, true, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestValidate_SendsSampleRecommendation(t *testing.T) {
	client := new(MockBot)
	client.On("GetMe", mock.Anything).Return(&models.User{ID: 7, Username: "insights_bot"}, nil)
	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *bot.SendMessageParams) bool {
		return p.ChatID == int64(99) && strings.Contains(p.Text, "Sample Notification")
	})).Return(&models.Message{ID: 1}, nil).Once()

	var out bytes.Buffer
	err := validate(context.Background(), &out, config.TelegramConfig{BotToken: "123:abc", ChatID: 99}, client, true, discardLogger())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Sample recommendation delivered")
	client.AssertExpectations(t)
}
