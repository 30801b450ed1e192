package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/chat-batch-worker/internal/chat"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingAcker stands in for the broker channel behind amqp.Delivery.
type recordingAcker struct {
	mu       sync.Mutex
	acked    []uint64
	requeued []uint64
	dropped  []uint64
}

func (a *recordingAcker) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAcker) Nack(tag uint64, multiple bool, requeue bool) error {
	return a.Reject(tag, requeue)
}

func (a *recordingAcker) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.requeued = append(a.requeued, tag)
	} else {
		a.dropped = append(a.dropped, tag)
	}
	return nil
}

func (a *recordingAcker) counts() (acked, requeued, dropped int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acked), len(a.requeued), len(a.dropped)
}

func newDelivery(ack amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: []byte(body)}
}

func messageBody(t *testing.T, m chat.IncomingMessage) string {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func buffered(ack amqp.Acknowledger, tag uint64, m chat.IncomingMessage) BufferedDelivery {
	return BufferedDelivery{Payload: m, Delivery: amqp.Delivery{Acknowledger: ack, DeliveryTag: tag}}
}

// memCounter is an in-process Counter that records every call.
type memCounter struct {
	mu        sync.Mutex
	values    map[string]int64
	chatCalls int
	msgCalls  int
	failMsgs  error
}

func newMemCounter() *memCounter {
	return &memCounter{values: make(map[string]int64)}
}

func (c *memCounter) NextChatNumber(ctx context.Context, applicationID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatCalls++
	c.values["app:"+applicationID]++
	return c.values["app:"+applicationID], nil
}

func (c *memCounter) NextMessageNumber(ctx context.Context, chatID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgCalls++
	if c.failMsgs != nil {
		return 0, c.failMsgs
	}
	c.values["chat:"+chatID]++
	return c.values["chat:"+chatID], nil
}

func (c *memCounter) calls() (chats, msgs int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatCalls, c.msgCalls
}

// spyStore wraps a real store and lets tests observe or break the gateway calls.
type spyStore struct {
	inner Store

	txCalls      atomic.Int32
	createCalls  atomic.Int32
	hideExisting bool
	failInsert   error
}

func (s *spyStore) Transaction(ctx context.Context, fn func(tx chat.Gateway) error) error {
	s.txCalls.Add(1)
	return s.inner.Transaction(ctx, func(tx chat.Gateway) error {
		return fn(&spyGateway{Gateway: tx, s: s})
	})
}

type spyGateway struct {
	chat.Gateway
	s *spyStore
}

func (g *spyGateway) ChatsExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if g.s.hideExisting {
		return map[string]struct{}{}, nil
	}
	return g.Gateway.ChatsExisting(ctx, ids)
}

func (g *spyGateway) CreateChatIfAbsent(ctx context.Context, c *chat.Chat) (bool, error) {
	g.s.createCalls.Add(1)
	return g.Gateway.CreateChatIfAbsent(ctx, c)
}

func (g *spyGateway) BulkInsertMessages(ctx context.Context, msgs []chat.Message) error {
	if g.s.failInsert != nil {
		return g.s.failInsert
	}
	return g.Gateway.BulkInsertMessages(ctx, msgs)
}

var errStoreDown = errors.New("store unavailable")

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(gormsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&chat.Chat{}, &chat.Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedChat(t *testing.T, repo *chat.Repo, id, app string, number int64) {
	t.Helper()
	if _, err := repo.CreateChatIfAbsent(context.Background(), &chat.Chat{
		ID: id, Number: number, ApplicationID: app, UserID: "u1",
	}); err != nil {
		t.Fatalf("seed chat %s: %v", id, err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
