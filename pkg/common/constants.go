package common

const (
	RedisStreamIngestionRunRequest = "ingestion.run.request"
	RedisStreamTradeEvents         = "insider.trade.events"

	RedisStreamGroup    = "ingestor-group"
	RedisStreamConsumer = "ingestor-consumer"
)

// Broadcast event types.
const (
	EventNewTrade     = "new_trade"
	EventRunCompleted = "run_completed"
)
