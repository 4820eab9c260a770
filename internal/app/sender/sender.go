// Package sender содержит приложение, которое читает события жизненного
// цикла подписок из RabbitMQ и отправляет письма по SMTP.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/subscribely/internal/app/bootstrap"
	"github.com/magabrotheeeer/subscribely/internal/config"
	"github.com/magabrotheeeer/subscribely/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
	"github.com/magabrotheeeer/subscribely/internal/lib/smtp"
	"github.com/magabrotheeeer/subscribely/internal/notification"
	senderservice "github.com/magabrotheeeer/subscribely/internal/services/sender"
)

type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.sender.New"

	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("%s: rabbitmq.url is required", op)
	}
	conn, err := rabbitmq.Connect(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.NotificationQueues(notification.RoutingKeys...))
	if err != nil {
		bootstrap.CloseAMQP(nil, conn, logger)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.SMTP.Rate), max(cfg.SMTP.Burst, 1))
	transport := smtp.NewTransport(cfg.SMTP, logger)
	senderService := senderservice.NewSenderService(transport, limiter, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer bootstrap.CloseAMQP(a.ch, a.conn, a.logger)

	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.EventsQueue, a.logger, a.senderService.HandleEvent)
	if err != nil {
		a.logger.Error("failed to start consumer", slog.String("queue", rabbitmq.EventsQueue), sl.Err(err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("Sender service shutting down gracefully")
	return nil
}
