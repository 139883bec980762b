package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clearcart/api/internal/domain"
)

const (
	notificationKindOrderConfirmation = "order_confirmation"
	notificationKindStatusUpdate      = "status_update"
	notificationKindRefundNotice      = "refund_notice"

	notificationEventQueued = "notification.queued"
	notificationEventFailed = "notification.publish_failed"
)

// ErrNotificationInvalidInput indicates the order lacked the fields needed to
// address a customer message.
var ErrNotificationInvalidInput = errors.New("notification: invalid input")

// NotificationPublisher publishes notification messages to the outbound queue.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, message NotificationMessage) (string, error)
}

// NotificationMessage is the payload delivered to notification workers via Pub/Sub.
type NotificationMessage struct {
	NotificationID string         `json:"notificationId"`
	Kind           string         `json:"kind"`
	OrderID        string         `json:"orderId"`
	OrderNumber    string         `json:"orderNumber"`
	Recipient      string         `json:"recipient"`
	UserID         string         `json:"userId,omitempty"`
	QueuedAt       time.Time      `json:"queuedAt"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// NotificationDispatcherDeps enumerates collaborators required to construct the dispatcher.
type NotificationDispatcherDeps struct {
	Publisher   NotificationPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type notificationDispatcher struct {
	publisher NotificationPublisher
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewNotificationDispatcher wires dependencies into a NotificationDispatch implementation.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (NotificationDispatch, error) {
	if deps.Publisher == nil {
		return nil, errors.New("notification dispatcher: publisher is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return "ntf_" + ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationDispatcher{
		publisher: deps.Publisher,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (d *notificationDispatcher) SendOrderConfirmation(ctx context.Context, order domain.Order) error {
	payload := map[string]any{
		"total":    order.Totals.Total,
		"currency": order.Currency,
		"items":    len(order.Items),
	}
	return d.publish(ctx, notificationKindOrderConfirmation, order, payload)
}

func (d *notificationDispatcher) SendStatusUpdate(ctx context.Context, order domain.Order, from domain.OrderStatus, to domain.OrderStatus) error {
	payload := map[string]any{
		"fromStatus": string(from),
		"toStatus":   string(to),
	}
	if to == domain.OrderStatusShipped && order.TrackingNumber != nil {
		payload["trackingNumber"] = *order.TrackingNumber
	}
	return d.publish(ctx, notificationKindStatusUpdate, order, payload)
}

func (d *notificationDispatcher) SendRefundNotice(ctx context.Context, order domain.Order, refund domain.OrderRefund) error {
	payload := map[string]any{
		"refundId":     refund.ID,
		"refundNumber": refund.RefundNumber,
		"amount":       refund.Amount,
		"status":       string(refund.Status),
	}
	return d.publish(ctx, notificationKindRefundNotice, order, payload)
}

func (d *notificationDispatcher) publish(ctx context.Context, kind string, order domain.Order, payload map[string]any) error {
	recipient := notificationRecipient(order)
	if recipient == "" {
		return fmt.Errorf("%w: order %s has no recipient", ErrNotificationInvalidInput, order.ID)
	}

	msg := NotificationMessage{
		NotificationID: d.newID(),
		Kind:           kind,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Recipient:      recipient,
		QueuedAt:       d.clock(),
		Payload:        payload,
	}
	if userID := strings.TrimSpace(order.UserID); userID != "" {
		msg.UserID = userID
	}

	if _, err := d.publisher.PublishNotification(ctx, msg); err != nil {
		d.logger(ctx, notificationEventFailed, map[string]any{
			"notificationId": msg.NotificationID,
			"kind":           kind,
			"orderId":        order.ID,
			"error":          err.Error(),
		})
		return fmt.Errorf("publish notification: %w", err)
	}

	d.logger(ctx, notificationEventQueued, map[string]any{
		"notificationId": msg.NotificationID,
		"kind":           kind,
		"orderId":        order.ID,
	})
	return nil
}

func notificationRecipient(order domain.Order) string {
	if email := strings.TrimSpace(order.GuestEmail); email != "" {
		return email
	}
	return strings.TrimSpace(order.UserID)
}
