package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/bitacora/core"
	"github.com/trezcool/bitacora/core/notification"
	"github.com/trezcool/bitacora/core/user"
)

type notificationApi struct {
	svc    notification.Service
	usrSvc user.Service
}

func registerNotificationAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc notification.Service, usrSvc user.Service) {
	api := notificationApi{svc: svc, usrSvc: usrSvc}

	ng := g.Group("/notifications", jwt)
	ng.GET("", api.inbox)
	ng.POST("", api.send)
	ng.GET("/unread", api.unreadCount)
	ng.GET("/sent", api.sent)
	ng.POST("/:id/read", api.markRead)
}

// claimsRoles lists the notification roles held by the requester, most privileged first.
func claimsRoles(claims Claims) []string {
	var roles []string
	if claims.IsAdmin {
		roles = append(roles, notification.RoleAdmin)
	}
	if claims.IsInstructor {
		roles = append(roles, notification.RoleInstructor)
	}
	if claims.IsLearner {
		roles = append(roles, notification.RoleLearner)
	}
	return roles
}

// recipient resolves whose inbox is read. `?role=` picks among the requester's roles.
func recipient(ctx echo.Context) (notification.Recipient, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return notification.Recipient{}, errors.Wrap(err, "getting context claims")
	}
	roles := claimsRoles(claims)
	if len(roles) == 0 {
		return notification.Recipient{}, errHttpForbidden
	}

	role := core.CleanString(ctx.QueryParam("role"), true)
	if role == "" {
		return notification.Recipient{ID: claims.Subject, Role: roles[0]}, nil
	}
	for _, r := range roles {
		if r == role {
			return notification.Recipient{ID: claims.Subject, Role: r}, nil
		}
	}
	return notification.Recipient{}, errHttpForbidden
}

func (api *notificationApi) inbox(ctx echo.Context) error {
	rcpt, err := recipient(ctx)
	if err != nil {
		return err
	}
	nn, err := api.svc.Inbox(ctx.Request().Context(), rcpt)
	if err != nil {
		return errors.Wrap(err, "querying inbox")
	}
	return ctx.JSON(http.StatusOK, nn)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	rcpt, err := recipient(ctx)
	if err != nil {
		return err
	}
	cnt, err := api.svc.UnreadCount(ctx.Request().Context(), rcpt)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, UnreadCountResponse{Unread: cnt})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	rcpt, err := recipient(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.MarkRead(ctx.Request().Context(), ctx.Param("id"), rcpt)
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) sent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	nn, err := api.svc.Sent(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "querying sent notifications")
	}
	return ctx.JSON(http.StatusOK, nn)
}

// send posts a notification as the requester's most privileged role.
// Learners may only write to admins & instructors.
func (api *notificationApi) send(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	roles := claimsRoles(claims)
	if len(roles) == 0 {
		return errHttpForbidden
	}

	var data notification.NewNotification
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNotification")
	}
	data.SenderID = claims.Subject
	data.SenderRole = roles[0]
	if data.SenderRole == notification.RoleLearner && core.CleanString(data.RecipientRole, true) == notification.RoleLearner {
		return errHttpForbidden
	}

	rctx := ctx.Request().Context()
	if data.RecipientID != "" {
		if _, err := api.usrSvc.GetByID(rctx, data.RecipientID); err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return core.NewValidationError(nil, core.FieldError{Field: "recipient_id", Error: "unknown recipient"})
			}
			return errors.Wrap(err, "finding recipient")
		}
	}

	n, err := api.svc.Send(rctx, data)
	if err != nil {
		return errors.Wrap(err, "sending notification")
	}
	return ctx.JSON(http.StatusCreated, n)
}

type UnreadCountResponse struct {
	Unread int `json:"unread"`
}
