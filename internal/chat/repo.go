package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrChatNumberTaken is returned when a chat insert lost a conflict on (application_id, number)
// rather than on the chat id itself.
var ErrChatNumberTaken = errors.New("chat number already taken in application")

// Gateway is the set of store operations a batch runs inside one transaction.
type Gateway interface {
	ChatsExisting(ctx context.Context, ids []string) (map[string]struct{}, error)
	CreateChatIfAbsent(ctx context.Context, c *Chat) (created bool, err error)
	BulkInsertMessages(ctx context.Context, msgs []Message) error
	AddMessagesCount(ctx context.Context, chatID string, n int64) error
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Transaction runs fn against a Gateway bound to a single database transaction.
// Any error returned by fn rolls the whole transaction back.
func (r *Repo) Transaction(ctx context.Context, fn func(tx Gateway) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{db: tx})
	})
}

func (r *Repo) ChatsExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var found []string
	if err := r.db.WithContext(ctx).Model(&Chat{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = struct{}{}
	}
	return out, nil
}

// CreateChatIfAbsent inserts c unless a chat with the same id already exists.
// created is false when another writer got there first; that is not an error.
func (r *Repo) CreateChatIfAbsent(ctx context.Context, c *Chat) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(c)
	if res.Error != nil {
		if !IsDuplicateKey(res.Error) {
			return false, res.Error
		}
	} else if res.RowsAffected > 0 {
		return true, nil
	}

	// Nothing inserted: make sure the conflict was on the id and not on the chat number.
	var n int64
	if err := r.db.WithContext(ctx).Model(&Chat{}).Where("id = ?", c.ID).Count(&n).Error; err != nil {
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("%w: application=%s number=%d", ErrChatNumberTaken, c.ApplicationID, c.Number)
	}
	return false, nil
}

func (r *Repo) BulkInsertMessages(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(msgs, 500).Error
}

func (r *Repo) AddMessagesCount(ctx context.Context, chatID string, n int64) error {
	return r.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ?", chatID).
		UpdateColumn("messages_count", gorm.Expr("messages_count + ?", n)).Error
}

func (r *Repo) GetChatByID(ctx context.Context, id string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListMessages returns a chat's messages in ascending number order.
func (r *Repo) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("number ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// IsDuplicateKey reports whether err is a unique-constraint violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	// sqlite, when the driver does not translate
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
