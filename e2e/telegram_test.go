//go:build e2e

package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/fgeck/gostation-homelab/internal/services/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTelegramConfig(t *testing.T) models.TelegramConfig {
	t.Helper()

	botToken := os.Getenv("TEST_TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		t.Skip("TEST_TELEGRAM_BOT_TOKEN not set")
	}

	chatID := os.Getenv("TEST_TELEGRAM_CHAT_ID")
	if chatID == "" {
		t.Skip("TEST_TELEGRAM_CHAT_ID not set")
	}

	return models.TelegramConfig{
		BotToken: botToken,
		ChatID:   chatID,
	}
}

func testMessage() models.TelegramMessage {
	return models.TelegramMessage{
		Interface: "wlan0",
		CycleID:   "e2e-cycle",
		TakenAt:   time.Now(),
		Events: []models.Event{
			{Kind: models.EventAppeared, MAC: "AA:BB:CC:DD:EE:01", Name: "e2e phone", New: true},
			{Kind: models.EventOffline, MAC: "AA:BB:CC:DD:EE:02", Name: "e2e <laptop>", Old: true},
		},
	}
}

func TestTelegramSendPresenceNotification_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)

	svc := telegram.New(testLogger())

	result, err := svc.SendNotification(context.Background(), cfg, testMessage())

	require.NoError(t, err)
	assert.True(t, result.MessageSent)
	assert.Nil(t, result.Error)
}

func TestTelegramNotifier_E2E(t *testing.T) {
	cfg := getTelegramConfig(t)
	cfg.NotifyOn = []models.EventKind{models.EventAppeared}

	notifier := telegram.NewNotifier(testLogger(), telegram.New(testLogger()), cfg, "wlan0")

	msg := testMessage()
	notifier.Notify(context.Background(), models.Update{
		CycleID:  msg.CycleID,
		Snapshot: models.NewSnapshot(msg.TakenAt, nil),
		Delta:    models.Delta{Appeared: msg.Events[:1]},
	})
}

func TestTelegramInvalidToken_E2E(t *testing.T) {
	cfg := models.TelegramConfig{
		BotToken: "invalid:token",
		ChatID:   "-100123456789",
	}

	svc := telegram.New(testLogger())

	result, err := svc.SendNotification(context.Background(), cfg, testMessage())

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
}

func TestTelegramInvalidChatID_E2E(t *testing.T) {
	botToken := os.Getenv("TEST_TELEGRAM_BOT_TOKEN")
	if botToken == "" {
		t.Skip("TEST_TELEGRAM_BOT_TOKEN not set")
	}

	cfg := models.TelegramConfig{
		BotToken: botToken,
		ChatID:   "invalid-chat-id",
	}

	svc := telegram.New(testLogger())

	result, err := svc.SendNotification(context.Background(), cfg, testMessage())

	require.NoError(t, err)
	assert.False(t, result.MessageSent)
	assert.NotNil(t, result.Error)
}
