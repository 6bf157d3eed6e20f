package queue

import "context"

const (
	// OutboxQueueName carries due notifications to the external SMS gateway.
	OutboxQueueName = "sms.outbox"
	// ReceiptQueueName carries delivery receipts back from the gateway.
	ReceiptQueueName = "sms.receipts"
	// ReceiptDLQName holds receipts that could not be processed.
	ReceiptDLQName = "dlq.sms.receipts"
)

// Publisher publishes outbox messages for the SMS gateway.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg OutboxMessage) error
	Close() error
}

// ReceiptHandler handles a consumed delivery receipt.
type ReceiptHandler func(ctx context.Context, receipt DeliveryReceipt) error

// Consumer consumes delivery receipts from the gateway.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler ReceiptHandler) error
	Close() error
}
