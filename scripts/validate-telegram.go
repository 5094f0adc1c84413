package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-insights/internal/config"
	"github.com/irfndi/celebrum-insights/internal/models"
	"github.com/irfndi/celebrum-insights/internal/services"
)

// telegramClient is the subset of *bot.Bot the checks use.
type telegramClient interface {
	GetMe(ctx context.Context) (*tgmodels.User, error)
	services.MessageSender
}

func main() {
	sendTest := flag.Bool("send", false, "send a sample recommendation to the configured chat")
	flag.Parse()

	fmt.Println("🔧 Validating Telegram notifier configuration...")

	if err := godotenv.Load(); err != nil {
		fmt.Printf("⚠️  Warning: Could not load .env file: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.Telegram.BotToken == "" {
		fmt.Println("❌ TELEGRAM_BOT_TOKEN is not configured")
		os.Exit(1)
	}

	b, err := bot.New(cfg.Telegram.BotToken, bot.WithSkipGetMe())
	if err != nil {
		fmt.Printf("❌ Failed to create Telegram bot: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if err := validate(ctx, os.Stdout, cfg.Telegram, b, *sendTest, logger); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\n🎉 All Telegram notifier checks passed!")
}

// validate checks the bot connection and chat configuration, optionally
// delivering one sample recommendation through the notifier.
func validate(ctx context.Context, out io.Writer, cfg config.TelegramConfig, client telegramClient, sendTest bool, logger *logrus.Logger) error {
	fmt.Fprintf(out, "✅ TELEGRAM_BOT_TOKEN is configured (length: %d)\n", len(cfg.BotToken))

	fmt.Fprintln(out, "🔍 Testing bot API connection...")
	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	fmt.Fprintf(out, "✅ Bot API connection successful: @%s (id %d)\n", me.Username, me.ID)

	if cfg.ChatID == 0 {
		if sendTest {
			return errors.New("TELEGRAM_CHAT_ID is required to send a sample recommendation")
		}
		fmt.Fprintln(out, "⚠️  TELEGRAM_CHAT_ID is not configured, recommendations will not be delivered")
		return nil
	}
	fmt.Fprintf(out, "✅ TELEGRAM_CHAT_ID is configured: %d\n", cfg.ChatID)

	if !sendTest {
		return nil
	}

	notifier := services.NewRecommendationNotifier(client, cfg.ChatID, logger)
	if err := notifier.NotifyRecommendations(ctx, "validate-telegram", []models.Recommendation{sampleRecommendation()}); err != nil {
		return err
	}
	fmt.Fprintln(out, "✅ Sample recommendation delivered")
	return nil
}

func sampleRecommendation() models.Recommendation {
	return models.Recommendation{
		ID:         "sample",
		Domain:     models.DomainInventory,
		Category:   models.CategoryStockoutRisk,
		Subject:    "SAMPLE-SKU",
		Title:      "Sample Notification",
		Confidence: 1,
		Priority:   models.PriorityHigh,
		Impact:     models.ImpactAssessment{ImpactType: models.ImpactRevenue},
		Actions:    []models.ActionStep{{Order: 1, Description: "No action needed"}},
		CreatedAt:  time.Now(),
	}
}
