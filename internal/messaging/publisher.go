package messaging

import (
	"context"

	"github.com/dregan-protocol/staking-core/internal/domain"
)

//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher

// Publisher defines the interface for publishing ledger events to the message
// broker. Publishing is best-effort: the event journal row committed with the
// mutation is the durable record, the broker is a downstream notification.
type Publisher interface {
	// PublishEvent publishes a committed ledger event
	PublishEvent(ctx context.Context, event *domain.LedgerEvent) error
	// Close closes the connection
	Close()
}
