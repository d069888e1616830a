package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// HelloName is sent in EHLO. Defaults to localhost.
	HelloName string
	// RequireTLS fails the send when the server does not offer STARTTLS.
	RequireTLS         bool
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// SMTPTransport relays every message through one submission server.
type SMTPTransport struct {
	cfg      SMTPConfig
	dkim     *DKIMSigner
	logger   *slog.Logger
	startTLS atomic.Bool
}

func NewSMTPTransport(cfg SMTPConfig, logger *slog.Logger) *SMTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HelloName == "" {
		cfg.HelloName = "localhost"
	}
	return &SMTPTransport{cfg: cfg, logger: logger}
}

// WithDKIM signs every outgoing message with signer.
func (t *SMTPTransport) WithDKIM(signer *DKIMSigner) *SMTPTransport {
	t.dkim = signer
	return t
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) (string, error) {
	messageID := newMessageID(msg.FromEmail)
	data, err := buildMessage(msg, messageID, time.Now())
	if err != nil {
		return "", &SendError{Permanent: true, Err: err}
	}

	if t.dkim != nil {
		signed, err := t.dkim.Sign(data)
		if err != nil {
			t.logger.Warn("DKIM signing failed, sending unsigned",
				"domain", t.dkim.Domain(),
				"error", err,
			)
		} else {
			data = signed
		}
	}

	client, err := t.connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	if t.cfg.Username != "" {
		if err := client.Auth(sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)); err != nil {
			return "", classifySMTP("AUTH", err)
		}
	}

	if err := client.SendMail(msg.FromEmail, []string{msg.To}, bytes.NewReader(data)); err != nil {
		return "", classifySMTP("send", err)
	}

	if err := client.Quit(); err != nil {
		t.logger.Debug("smtp quit failed", "error", err)
	}

	return messageID, nil
}

// connect opens an EHLO'd session, upgraded with STARTTLS when the server
// offers it. Once a server has offered STARTTLS later sends go straight to
// the upgrade.
func (t *SMTPTransport) connect(ctx context.Context) (*smtp.Client, error) {
	if t.startTLS.Load() {
		return t.connectStartTLS(ctx)
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	client := smtp.NewClient(conn)
	if err := client.Hello(t.cfg.HelloName); err != nil {
		client.Close()
		return nil, classifySMTP("EHLO", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		client.Close()
		t.startTLS.Store(true)
		return t.connectStartTLS(ctx)
	}
	if t.cfg.RequireTLS {
		client.Close()
		return nil, &SendError{Err: fmt.Errorf("server %s does not support STARTTLS", t.addr())}
	}
	return client, nil
}

func (t *SMTPTransport) connectStartTLS(ctx context.Context) (*smtp.Client, error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	client, err := smtp.NewClientStartTLS(conn, &tls.Config{
		ServerName:         t.cfg.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, classifySMTP("STARTTLS", err)
	}
	if err := client.Hello(t.cfg.HelloName); err != nil {
		client.Close()
		return nil, classifySMTP("EHLO", err)
	}
	return client, nil
}

func (t *SMTPTransport) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr())
	if err != nil {
		return nil, &SendError{Err: fmt.Errorf("connecting to %s: %w", t.addr(), err)}
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(t.cfg.Timeout))
	}
	return conn, nil
}

func (t *SMTPTransport) addr() string {
	return net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
}

// classifySMTP maps 5xx replies to permanent failures. Everything else,
// including network errors, may succeed later.
func classifySMTP(stage string, err error) error {
	var se *smtp.SMTPError
	if errors.As(err, &se) {
		return &SendError{
			Permanent: se.Code >= 500 && se.Code < 600,
			Code:      se.Code,
			Err:       fmt.Errorf("%s: %w", stage, err),
		}
	}
	return &SendError{Err: fmt.Errorf("%s: %w", stage, err)}
}
