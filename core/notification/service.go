package notification

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("notification not found")
)

type (
	Repository interface {
		InsertNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		GetNotification(ctx context.Context, id string, exec ...core.DBExecutor) (Notification, error)
		// QueryInbox returns the notifications addressed to `rcpt`, and the broadcasts to their role, newest first.
		QueryInbox(ctx context.Context, rcpt Recipient, exec ...core.DBExecutor) ([]Notification, error)
		// CountUnread counts the unread notifications addressed to `rcpt` directly.
		CountUnread(ctx context.Context, rcpt Recipient, exec ...core.DBExecutor) (int, error)
		MarkNotificationRead(ctx context.Context, id string, exec ...core.DBExecutor) (Notification, error)
		QuerySent(ctx context.Context, senderID string, exec ...core.DBExecutor) ([]Notification, error)
	}

	// UserGetter resolves the email address of direct recipients.
	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service interface {
		Send(ctx context.Context, nn NewNotification) (Notification, error)
		Inbox(ctx context.Context, rcpt Recipient) ([]Notification, error)
		UnreadCount(ctx context.Context, rcpt Recipient) (int, error)
		MarkRead(ctx context.Context, id string, rcpt Recipient) (Notification, error)
		Sent(ctx context.Context, senderID string) ([]Notification, error)
	}

	service struct {
		repo     Repository
		users    UserGetter
		mailSvc  core.EmailService
		validate *validator.Validate
		logger   core.Logger
		baseURL  string
		nowFunc  func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	users UserGetter,
	mailSvc core.EmailService,
	validate *validator.Validate,
	logger core.Logger,
	conf *core.Config,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{
		repo:     repo,
		users:    users,
		mailSvc:  mailSvc,
		validate: validate,
		logger:   logger,
		baseURL:  conf.FrontendBaseURL,
		nowFunc:  time.Now,
	}
}

func (svc *service) Send(ctx context.Context, nn NewNotification) (Notification, error) {
	if err := nn.Validate(svc.validate); err != nil {
		return Notification{}, err
	}

	n, err := svc.repo.InsertNotification(ctx, Notification{
		SenderID:      nn.SenderID,
		SenderRole:    nn.SenderRole,
		RecipientID:   nn.RecipientID,
		RecipientRole: nn.RecipientRole,
		Subject:       nn.Subject,
		Body:          nn.Body,
		CreatedAt:     svc.nowFunc().UTC(),
	})
	if err != nil {
		return Notification{}, errors.Wrap(err, "inserting notification")
	}

	if nn.Email && !n.IsBroadcast() {
		svc.sendMail(ctx, n)
	}
	return n, nil
}

// sendMail emails a direct notification to its recipient; failures are only logged.
func (svc *service) sendMail(ctx context.Context, n Notification) {
	usr, err := svc.users.GetByID(ctx, n.RecipientID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("notification.sendMail: %v", err), err, map[string]interface{}{"notification": n.ID})
		return
	}
	if usr.Email == "" {
		return
	}
	data := map[string]string{
		"Name":    usr.Name,
		"Subject": n.Subject,
		"Body":    n.Body,
	}
	to := mail.Address{Name: usr.Name, Address: usr.Email}
	svc.mailSvc.SendMessages(core.NewTemplateEmail(to, n.Subject, "notification", data, svc.baseURL))
}

func (svc *service) Inbox(ctx context.Context, rcpt Recipient) ([]Notification, error) {
	return svc.repo.QueryInbox(ctx, rcpt)
}

func (svc *service) UnreadCount(ctx context.Context, rcpt Recipient) (int, error) {
	return svc.repo.CountUnread(ctx, rcpt)
}

func (svc *service) MarkRead(ctx context.Context, id string, rcpt Recipient) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	// broadcasts have no single reader
	if n.IsBroadcast() || n.RecipientID != rcpt.ID || n.RecipientRole != rcpt.Role {
		return Notification{}, ErrNotFound
	}
	if n.IsRead {
		return n, nil
	}
	return svc.repo.MarkNotificationRead(ctx, id)
}

func (svc *service) Sent(ctx context.Context, senderID string) ([]Notification, error) {
	return svc.repo.QuerySent(ctx, senderID)
}
