package smtp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/magabrotheeeer/subscribely/internal/config"
	"github.com/magabrotheeeer/subscribely/internal/lib/sl"
)

const dialTimeout = 10 * time.Second

// ErrNoStartTLS возвращается, если сервер не поддерживает STARTTLS.
var ErrNoStartTLS = errors.New("smtp server does not support STARTTLS")

// Transport реализует SMTP транспорт для отправки писем.
type Transport struct {
	cfg config.SMTP
	log *slog.Logger
}

// NewTransport создает новый экземпляр Transport.
func NewTransport(cfg config.SMTP, log *slog.Logger) *Transport {
	return &Transport{cfg: cfg, log: log}
}

// Connect устанавливает соединение с SMTP сервером, включает STARTTLS
// (если он не отключён) и выполняет PLAIN-аутентификацию при заданном пользователе.
func (t *Transport) Connect() (Client, error) {
	const op = "smtp.Connect"

	addr := net.JoinHostPort(t.cfg.Host, t.cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to dial SMTP server: %w", op, err)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		t.closeQuietly(conn.Close)
		return nil, fmt.Errorf("%s: failed to create SMTP client: %w", op, err)
	}

	if !t.cfg.SkipTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			t.closeQuietly(client.Close)
			return nil, fmt.Errorf("%s: %w", op, ErrNoStartTLS)
		}
		tlsConfig := &tls.Config{
			ServerName: t.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			t.closeQuietly(client.Close)
			return nil, fmt.Errorf("%s: failed to start TLS: %w", op, err)
		}
	}

	if t.cfg.User != "" {
		auth := smtp.PlainAuth("", t.cfg.User, t.cfg.Password, t.cfg.Host)
		if err := client.Auth(auth); err != nil {
			t.closeQuietly(client.Close)
			return nil, fmt.Errorf("%s: smtp auth failed: %w", op, err)
		}
	}

	return client, nil
}

// Sender возвращает адрес отправителя: From или, если он пуст, имя пользователя SMTP.
func (t *Transport) Sender() string {
	if t.cfg.From != "" {
		return t.cfg.From
	}
	return t.cfg.User
}

func (t *Transport) closeQuietly(closeFn func() error) {
	if err := closeFn(); err != nil {
		t.log.Error("failed to close smtp connection", sl.Err(err))
	}
}
