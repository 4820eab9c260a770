// Package services содержит отправителя писем о событиях жизненного цикла подписок.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/subscribely/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
	"github.com/magabrotheeeer/subscribely/internal/lib/smtp"
	"github.com/magabrotheeeer/subscribely/internal/metrics"
	"github.com/magabrotheeeer/subscribely/internal/models"
)

// SenderService превращает события из очереди в письма.
type SenderService struct {
	transport smtp.TransportInterface
	limiter   *rate.Limiter
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService. limiter ограничивает
// частоту подключений к SMTP-серверу, при nil ограничения нет.
func NewSenderService(transport smtp.TransportInterface, limiter *rate.Limiter, log *slog.Logger) *SenderService {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &SenderService{
		transport: transport,
		limiter:   limiter,
		log:       log,
	}
}

// HandleEvent разбирает событие и отправляет письмо владельцу подписки.
// Некорректное сообщение помечается rabbitmq.ErrDiscard, чтобы не возвращать его в очередь.
func (s *SenderService) HandleEvent(ctx context.Context, body []byte) error {
	const op = "services.sender.HandleEvent"

	var event models.LifecycleEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%s: unmarshal event: %v: %w", op, err, rabbitmq.ErrDiscard)
	}
	if event.Email == "" {
		return fmt.Errorf("%s: event without recipient: %w", op, rabbitmq.ErrDiscard)
	}

	subject, text, err := Compose(event)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", op, err, rabbitmq.ErrDiscard)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sendEmail([]string{event.Email}, subject, text); err != nil {
		metrics.EmailsSent.WithLabelValues(string(event.Type), "error").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.EmailsSent.WithLabelValues(string(event.Type), "ok").Inc()

	s.log.Info("email sent successfully",
		slog.String("event", string(event.Type)),
		slog.String("subscription_id", event.SubscriptionID),
	)
	return nil
}

// Compose возвращает тему и текст письма для события.
func Compose(event models.LifecycleEvent) (subject, body string, err error) {
	sub := event.Subscription
	greeting := fmt.Sprintf("Hello, %s!\n\n", event.Username)
	renewal := event.NextRenewal.Format("January 2, 2006")

	switch event.Type {
	case models.EventPurchased:
		subject = "Subscription Confirmation: " + sub.Name
		body = greeting +
			fmt.Sprintf("Thank you for subscribing to %s.\n\n", sub.Name) +
			fmt.Sprintf("Price: %s\nRenewal interval: %s\nActive until: %s\n\n", sub.Price, sub.RenewalInterval, renewal) +
			"You can manage your subscriptions from your account page.\n"
	case models.EventCancelled:
		subject = "Subscription Cancelled: " + sub.Name
		if event.ByAdmin {
			body = greeting +
				fmt.Sprintf("Your subscription to %s has been cancelled by an administrator.\n\n", sub.Name) +
				"If you believe this is a mistake, please contact support.\n"
		} else {
			body = greeting +
				fmt.Sprintf("Your subscription to %s has been cancelled.\n\n", sub.Name) +
				"No further charges will be made. You can subscribe again at any time.\n"
		}
	case models.EventExpired:
		subject = "Subscription Expired: " + sub.Name
		body = greeting +
			fmt.Sprintf("Your subscription to %s expired on %s and is no longer active.\n\n", sub.Name, renewal) +
			"You can purchase it again from the catalog.\n"
	default:
		return "", "", fmt.Errorf("unknown event type %q", event.Type)
	}
	return subject, body, nil
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	from := s.transport.Sender()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"Date: " + time.Now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		strings.ReplaceAll(bodyText, "\n", "\r\n"),
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			s.log.Debug("smtp client close", sl.Err(err))
		}
	}()

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return fmt.Errorf("RCPT TO: %w", err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := wc.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("QUIT: %w", err)
	}
	return nil
}
