package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	NotifyOn []EventKind // empty notifies on every kind
}

// TelegramMessage holds the data for a presence notification.
type TelegramMessage struct {
	Interface string
	CycleID   string
	TakenAt   time.Time
	Events    []Event
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
