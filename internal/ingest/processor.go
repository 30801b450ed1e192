package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/suPer8Hu/chat-batch-worker/internal/chat"
)

// ErrMissingApplication means a batch references a chat that does not exist yet and none of its
// messages says which application the chat belongs to.
var ErrMissingApplication = errors.New("new chat has no applicationId")

// Counter hands out chat and message sequence numbers.
type Counter interface {
	NextChatNumber(ctx context.Context, applicationID string) (int64, error)
	NextMessageNumber(ctx context.Context, chatID string) (int64, error)
}

// Store runs fn inside one transaction; an error from fn rolls everything back.
type Store interface {
	Transaction(ctx context.Context, fn func(tx chat.Gateway) error) error
}

type Processor struct {
	store   Store
	counter Counter
}

func NewProcessor(store Store, counter Counter) *Processor {
	return &Processor{store: store, counter: counter}
}

// Process commits a drained batch and settles every delivery in it: all acked on commit,
// all rejected with requeue otherwise. The commit error is returned for callers that care;
// the deliveries have already been settled either way.
func (p *Processor) Process(ctx context.Context, batch []BufferedDelivery) error {
	if len(batch) == 0 {
		return nil
	}

	batchID := ulid.Make().String()
	start := time.Now()

	err := p.commit(ctx, batchID, batch)
	cost := time.Since(start)

	if err != nil {
		log.Printf("batch=%s commit failed size=%d cost=%s err=%v", batchID, len(batch), cost, err)
		batchesTotal.WithLabelValues(outcomeFailed).Inc()
		p.settle(batchID, batch, false)
		flushDuration.Observe(time.Since(start).Seconds())
		return err
	}

	log.Printf("batch=%s committed size=%d cost=%s", batchID, len(batch), cost)
	batchesTotal.WithLabelValues(outcomeCommitted).Inc()
	p.settle(batchID, batch, true)
	flushDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (p *Processor) commit(ctx context.Context, batchID string, batch []BufferedDelivery) error {
	return p.store.Transaction(ctx, func(tx chat.Gateway) error {
		chatIDs, samples := distinctChats(batch)

		existing, err := tx.ChatsExisting(ctx, chatIDs)
		if err != nil {
			return fmt.Errorf("check chats: %w", err)
		}

		for _, id := range chatIDs {
			if _, ok := existing[id]; ok {
				continue
			}
			if err := p.createChat(ctx, tx, batchID, id, samples[id]); err != nil {
				return err
			}
		}

		now := time.Now()
		msgs := make([]chat.Message, 0, len(batch))
		counts := make(map[string]int64, len(chatIDs))
		for _, item := range batch {
			m := item.Payload
			number, err := p.counter.NextMessageNumber(ctx, m.ChatID)
			if err != nil {
				return fmt.Errorf("next message number chat=%s: %w", m.ChatID, err)
			}
			msgs = append(msgs, chat.Message{
				ID:        uuid.NewString(),
				ChatID:    m.ChatID,
				UserID:    m.UserID,
				Text:      m.Content,
				Number:    number,
				CreatedAt: now,
				UpdatedAt: now,
			})
			counts[m.ChatID]++
		}

		if err := tx.BulkInsertMessages(ctx, msgs); err != nil {
			return fmt.Errorf("insert messages: %w", err)
		}

		for _, id := range chatIDs {
			if err := tx.AddMessagesCount(ctx, id, counts[id]); err != nil {
				return fmt.Errorf("messages count chat=%s: %w", id, err)
			}
		}
		return nil
	})
}

func (p *Processor) createChat(ctx context.Context, tx chat.Gateway, batchID, chatID string, sample chat.IncomingMessage) error {
	if sample.ApplicationID == "" {
		return fmt.Errorf("%w: chat=%s", ErrMissingApplication, chatID)
	}

	number, err := p.counter.NextChatNumber(ctx, sample.ApplicationID)
	if err != nil {
		return fmt.Errorf("next chat number app=%s: %w", sample.ApplicationID, err)
	}

	created, err := tx.CreateChatIfAbsent(ctx, &chat.Chat{
		ID:            chatID,
		Number:        number,
		ApplicationID: sample.ApplicationID,
		UserID:        sample.UserID,
	})
	if err != nil {
		return fmt.Errorf("create chat %s: %w", chatID, err)
	}
	if !created {
		log.Printf("batch=%s chat=%s already created", batchID, chatID)
	}
	return nil
}

// distinctChats returns chat ids in first-seen order, plus the message that describes each chat:
// the first one carrying an applicationId, or the first one at all.
func distinctChats(batch []BufferedDelivery) ([]string, map[string]chat.IncomingMessage) {
	ids := make([]string, 0, len(batch))
	samples := make(map[string]chat.IncomingMessage, len(batch))
	for _, item := range batch {
		m := item.Payload
		prev, seen := samples[m.ChatID]
		if !seen {
			ids = append(ids, m.ChatID)
			samples[m.ChatID] = m
			continue
		}
		if prev.ApplicationID == "" && m.ApplicationID != "" {
			samples[m.ChatID] = m
		}
	}
	return ids, samples
}

func (p *Processor) settle(batchID string, batch []BufferedDelivery, committed bool) {
	var failed int
	for _, item := range batch {
		var err error
		if committed {
			err = item.Delivery.Ack(false)
		} else {
			err = item.Delivery.Reject(true)
		}
		if err != nil {
			failed++
			deliveriesTotal.WithLabelValues(outcomeSettleFailed).Inc()
			log.Printf("batch=%s settle failed tag=%d committed=%t err=%v", batchID, item.Delivery.DeliveryTag, committed, err)
			continue
		}
		if committed {
			deliveriesTotal.WithLabelValues(outcomeAcked).Inc()
		} else {
			deliveriesTotal.WithLabelValues(outcomeRequeued).Inc()
		}
	}

	if committed {
		log.Printf("batch=%s acked=%d failed=%d", batchID, len(batch)-failed, failed)
	} else {
		log.Printf("batch=%s requeued=%d failed=%d", batchID, len(batch)-failed, failed)
	}
}
