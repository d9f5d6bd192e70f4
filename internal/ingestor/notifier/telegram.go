package notifier

import (
	"context"
	"fmt"
	"time"

	"insidertrack/internal/entity"
	"insidertrack/internal/ingestor/dto"
	"insidertrack/pkg/common"
	"insidertrack/pkg/telegram"
	"insidertrack/pkg/utils"
)

// defaultSendTimeout bounds one message when no timeout is configured.
const defaultSendTimeout = 10 * time.Second

type telegramBroadcaster struct {
	client  telegram.Notifier
	timeout time.Duration
}

// NewTelegramBroadcaster sends new-trade alerts and run summaries to a
// Telegram chat. Other events are ignored. A send that outlives timeout or
// the caller's context is abandoned and reported as an error.
func NewTelegramBroadcaster(client telegram.Notifier, timeout time.Duration) Broadcaster {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &telegramBroadcaster{client: client, timeout: timeout}
}

func (b *telegramBroadcaster) Notify(ctx context.Context, eventType string, payload any) error {
	var text string
	switch eventType {
	case common.EventNewTrade:
		trade, ok := payload.(*entity.InsiderTrade)
		if !ok {
			return fmt.Errorf("unexpected %s payload %T", eventType, payload)
		}
		text = telegram.FormatTradeAlert(trade)
	case common.EventRunCompleted:
		summary, ok := payload.(dto.RunSummary)
		if !ok {
			return fmt.Errorf("unexpected %s payload %T", eventType, payload)
		}
		// Quiet runs are not worth a message.
		if summary.Processed == 0 && summary.Status == string(entity.RunStatusCompleted) {
			return nil
		}
		text = telegram.FormatRunSummary(summary)
	default:
		return nil
	}

	if err := b.send(ctx, text); err != nil {
		return fmt.Errorf("failed to send telegram %s message: %w", eventType, err)
	}
	return nil
}

// send runs the blocking Bot API call off the caller's goroutine so a stalled
// request cannot hold up the ingestion run.
func (b *telegramBroadcaster) send(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	utils.GoSafe(func() {
		done <- b.client.SendMessage(text)
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
