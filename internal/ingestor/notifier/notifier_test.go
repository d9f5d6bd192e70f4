package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"insidertrack/internal/entity"
	"insidertrack/internal/ingestor/dto"
	"insidertrack/pkg/common"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	redis.Cmdable
	added []*redis.XAddArgs
	err   error
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.added = append(f.added, a)
	return redis.NewStringResult("1-0", f.err)
}

type fakeTelegram struct {
	sent []string
	err  error
}

func (f *fakeTelegram) SendMessage(text string) error {
	f.sent = append(f.sent, text)
	return f.err
}

func trade() *entity.InsiderTrade {
	return &entity.InsiderTrade{
		FilingID:      "0000320193-24-000010",
		Ticker:        "AAPL",
		CompanyName:   "Apple Inc.",
		TraderName:    "Cook Timothy D",
		TraderTitle:   "CEO",
		TradeType:     entity.TradeTypeSell,
		SignalType:    entity.SignalSell,
		Shares:        1000,
		PricePerShare: decimal.RequireFromString("185"),
		TotalValue:    decimal.RequireFromString("185000"),
		TradeDate:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		SourceName:    "sec",
		Confidence:    100,
	}
}

func TestRedisStreamBroadcaster(t *testing.T) {
	stream := &fakeStream{}
	b := NewRedisStreamBroadcaster(stream, common.RedisStreamTradeEvents, 1000)

	require.NoError(t, b.Notify(context.Background(), common.EventNewTrade, trade()))
	require.Len(t, stream.added, 1)

	args := stream.added[0]
	assert.Equal(t, common.RedisStreamTradeEvents, args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values := args.Values.(map[string]interface{})
	assert.Equal(t, common.EventNewTrade, values["type"])
	var decoded entity.InsiderTrade
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	assert.Equal(t, "AAPL", decoded.Ticker)
	assert.Equal(t, "0000320193-24-000010", decoded.FilingID)
}

func TestNewEventRejectsUnencodablePayload(t *testing.T) {
	_, err := NewEvent(common.EventNewTrade, make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "new_trade")

	stream := &fakeStream{}
	b := NewRedisStreamBroadcaster(stream, common.RedisStreamTradeEvents, 0)
	assert.Error(t, b.Notify(context.Background(), common.EventNewTrade, make(chan int)))
	assert.Empty(t, stream.added)

	event, err := NewEvent(common.EventRunCompleted, dto.RunSummary{Source: "sec", Processed: 3})
	require.NoError(t, err)
	values := event.Values()
	assert.Equal(t, common.EventRunCompleted, values["type"])
	assert.Contains(t, values["payload"], `"processed":3`)
}

func TestRedisStreamBroadcasterError(t *testing.T) {
	stream := &fakeStream{err: errors.New("connection refused")}
	b := NewRedisStreamBroadcaster(stream, common.RedisStreamTradeEvents, 0)

	err := b.Notify(context.Background(), common.EventNewTrade, trade())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Zero(t, stream.added[0].MaxLen)
}

func TestTelegramBroadcaster(t *testing.T) {
	client := &fakeTelegram{}
	b := NewTelegramBroadcaster(client, time.Second)
	ctx := context.Background()

	require.NoError(t, b.Notify(ctx, common.EventNewTrade, trade()))
	require.Len(t, client.sent, 1)
	assert.Contains(t, client.sent[0], "`AAPL`")
	assert.Contains(t, client.sent[0], "1000 @ $185.00")
	assert.Contains(t, client.sent[0], "$185000.00")

	quiet := dto.RunSummary{Source: "sec", Status: string(entity.RunStatusCompleted)}
	require.NoError(t, b.Notify(ctx, common.EventRunCompleted, quiet))
	assert.Len(t, client.sent, 1)

	failed := dto.RunSummary{Source: "sec", Status: string(entity.RunStatusFailed), ErrorKind: "BLOCKED", Error: "access denied"}
	require.NoError(t, b.Notify(ctx, common.EventRunCompleted, failed))
	require.Len(t, client.sent, 2)
	assert.Contains(t, client.sent[1], "BLOCKED")

	require.NoError(t, b.Notify(ctx, "unknown", nil))
	assert.Len(t, client.sent, 2)

	assert.Error(t, b.Notify(ctx, common.EventNewTrade, "not a trade"))
}

type stalledTelegram struct {
	release chan struct{}
}

func (s *stalledTelegram) SendMessage(string) error {
	<-s.release
	return nil
}

func TestTelegramBroadcasterGivesUpOnStalledSend(t *testing.T) {
	client := &stalledTelegram{release: make(chan struct{})}
	defer close(client.release)

	b := NewTelegramBroadcaster(client, 50*time.Millisecond)
	start := time.Now()
	err := b.Notify(context.Background(), common.EventNewTrade, trade())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewTelegramBroadcaster(client, time.Minute)
	err = slow.Notify(ctx, common.EventNewTrade, trade())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMultiJoinsErrors(t *testing.T) {
	var calls []string
	ok := BroadcasterFunc(func(_ context.Context, eventType string, _ any) error {
		calls = append(calls, "ok:"+eventType)
		return nil
	})
	failing := BroadcasterFunc(func(_ context.Context, eventType string, _ any) error {
		calls = append(calls, "fail:"+eventType)
		return errors.New("boom")
	})

	err := Multi(failing, nil, ok).Notify(context.Background(), common.EventNewTrade, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"fail:new_trade", "ok:new_trade"}, calls)

	assert.NoError(t, Multi().Notify(context.Background(), common.EventNewTrade, nil))
	assert.NoError(t, Nop.Notify(context.Background(), common.EventNewTrade, nil))
}
