package boiledrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/notification"
)

const notificationColumns = `id, sender_id, sender_role, recipient_id, recipient_role, subject, body, is_read, created_at`

type notificationRow struct {
	ID            string      `boil:"id"`
	SenderID      string      `boil:"sender_id"`
	SenderRole    string      `boil:"sender_role"`
	RecipientID   null.String `boil:"recipient_id"`
	RecipientRole string      `boil:"recipient_role"`
	Subject       string      `boil:"subject"`
	Body          string      `boil:"body"`
	IsRead        bool        `boil:"is_read"`
	CreatedAt     time.Time   `boil:"created_at"`
}

func (r notificationRow) unboil() notification.Notification {
	return notification.Notification{
		ID:            r.ID,
		SenderID:      r.SenderID,
		SenderRole:    r.SenderRole,
		RecipientID:   r.RecipientID.String,
		RecipientRole: r.RecipientRole,
		Subject:       r.Subject,
		Body:          r.Body,
		IsRead:        r.IsRead,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func unboilNotifications(rows []*notificationRow) []notification.Notification {
	notifs := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		notifs = append(notifs, r.unboil())
	}
	return notifs
}

type notificationRepository struct {
	exec core.DBExecutor
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(exec core.DBExecutor) notification.Repository {
	return &notificationRepository{exec: exec}
}

func (repo *notificationRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	return core.GetExec(repo.exec, svcExec)
}

func (repo *notificationRepository) InsertNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	n.ID = uuid.New().String()
	_, err := queries.Raw(
		`INSERT INTO notification (`+notificationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.SenderID, n.SenderRole, nullString(n.RecipientID), n.RecipientRole, n.Subject, n.Body, n.IsRead, n.CreatedAt.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (notification.Notification, error) {
	if !isUUID(id) {
		return notification.Notification{}, notification.ErrNotFound
	}
	var row notificationRow
	err := queries.Raw(`SELECT `+notificationColumns+` FROM notification WHERE id = $1`, id).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return notification.Notification{}, trapNoRowsErr(err, notification.ErrNotFound, "finding notification")
	}
	return row.unboil(), nil
}

func (repo *notificationRepository) QueryInbox(ctx context.Context, rcpt notification.Recipient, exec ...core.DBExecutor) ([]notification.Notification, error) {
	var rows []*notificationRow
	err := queries.Raw(
		`SELECT `+notificationColumns+` FROM notification
		WHERE recipient_role = $1 AND (recipient_id IS NULL OR recipient_id = $2)
		ORDER BY created_at DESC, id DESC`,
		rcpt.Role, rcpt.ID,
	).Bind(ctx, repo.getExec(exec), &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying inbox")
	}
	return unboilNotifications(rows), nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, rcpt notification.Recipient, exec ...core.DBExecutor) (int, error) {
	var cnt int
	err := queries.Raw(
		`SELECT COUNT(*) FROM notification WHERE recipient_role = $1 AND recipient_id = $2 AND NOT is_read`,
		rcpt.Role, rcpt.ID,
	).QueryRowContext(ctx, repo.getExec(exec)).Scan(&cnt)
	if err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return cnt, nil
}

func (repo *notificationRepository) MarkNotificationRead(ctx context.Context, id string, exec ...core.DBExecutor) (notification.Notification, error) {
	if !isUUID(id) {
		return notification.Notification{}, notification.ErrNotFound
	}
	var row notificationRow
	err := queries.Raw(
		`UPDATE notification SET is_read = true WHERE id = $1 RETURNING `+notificationColumns, id,
	).Bind(ctx, repo.getExec(exec), &row)
	if err != nil {
		return notification.Notification{}, trapNoRowsErr(err, notification.ErrNotFound, "marking notification read")
	}
	return row.unboil(), nil
}

func (repo *notificationRepository) QuerySent(ctx context.Context, senderID string, exec ...core.DBExecutor) ([]notification.Notification, error) {
	var rows []*notificationRow
	err := queries.Raw(
		`SELECT `+notificationColumns+` FROM notification WHERE sender_id = $1 ORDER BY created_at DESC, id DESC`, senderID,
	).Bind(ctx, repo.getExec(exec), &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying sent notifications")
	}
	return unboilNotifications(rows), nil
}
