package inmemdb

import (
	"context"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

// query returns the notifications matching `match`, newest first; db.mu must be held.
func (repo *notificationRepository) query(match func(n *notification.Notification) bool) []notification.Notification {
	ids := make([]string, 0)
	for id, n := range repo.db.notifications {
		if match(n) {
			ids = append(ids, id)
		}
	}
	repo.db.sortIDs(ids, true)

	notifs := make([]notification.Notification, 0, len(ids))
	for _, id := range ids {
		notifs = append(notifs, *repo.db.notifications[id])
	}
	return notifs
}

func (repo *notificationRepository) InsertNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n.ID = repo.db.newID()
	repo.db.notifications[n.ID] = &n
	return n, nil
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if n, ok := repo.db.notifications[id]; ok {
		return *n, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) QueryInbox(ctx context.Context, rcpt notification.Recipient, exec ...core.DBExecutor) ([]notification.Notification, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	return repo.query(func(n *notification.Notification) bool {
		return n.RecipientRole == rcpt.Role && (n.RecipientID == "" || n.RecipientID == rcpt.ID)
	}), nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, rcpt notification.Recipient, exec ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var cnt int
	for _, n := range repo.db.notifications {
		if n.RecipientRole == rcpt.Role && n.RecipientID == rcpt.ID && !n.IsRead {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *notificationRepository) MarkNotificationRead(ctx context.Context, id string, exec ...core.DBExecutor) (notification.Notification, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n, ok := repo.db.notifications[id]
	if !ok {
		return notification.Notification{}, notification.ErrNotFound
	}
	n.IsRead = true
	return *n, nil
}

func (repo *notificationRepository) QuerySent(ctx context.Context, senderID string, exec ...core.DBExecutor) ([]notification.Notification, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	return repo.query(func(n *notification.Notification) bool {
		return n.SenderID == senderID
	}), nil
}
