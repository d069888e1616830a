package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

type received struct {
	from string
	to   []string
	data string
	user string
	tls  bool
}

type testBackend struct {
	mu       sync.Mutex
	messages []received
	users    map[string]string
}

func (b *testBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	_, isTLS := c.TLSConnectionState()
	return &testSession{backend: b, cur: received{tls: isTLS}}, nil
}

func (b *testBackend) all() []received {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]received(nil), b.messages...)
}

type testSession struct {
	backend *testBackend
	cur     received
}

func (s *testSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *testSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if s.backend.users[username] != password {
			return smtp.ErrAuthFailed
		}
		s.cur.user = username
		return nil
	}), nil
}

func (s *testSession) Mail(from string, opts *smtp.MailOptions) error {
	if s.backend.users != nil && s.cur.user == "" {
		return &smtp.SMTPError{Code: 530, Message: "Authentication required"}
	}
	s.cur.from = from
	return nil
}

func (s *testSession) Rcpt(to string, opts *smtp.RcptOptions) error {
	switch {
	case strings.HasPrefix(to, "missing@"):
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "No such user"}
	case strings.HasPrefix(to, "busy@"):
		return &smtp.SMTPError{Code: 451, EnhancedCode: smtp.EnhancedCode{4, 3, 0}, Message: "Try again later"}
	}
	s.cur.to = append(s.cur.to, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.cur.data = string(data)
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.cur)
	s.backend.mu.Unlock()
	return nil
}

func (s *testSession) Reset() {
	s.cur = received{user: s.cur.user, tls: s.cur.tls}
}

func (s *testSession) Logout() error { return nil }

func startSMTPServer(t *testing.T, backend *testBackend) (string, int) {
	t.Helper()
	return startSMTPServerTLS(t, backend, nil)
}

// startSMTPServerTLS offers STARTTLS when tlsConfig is set.
func startSMTPServerTLS(t *testing.T, backend *testBackend, tlsConfig *tls.Config) (string, int) {
	t.Helper()
	srv := smtp.NewServer(backend)
	srv.TLSConfig = tlsConfig
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	addr := l.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testMessage(to string) Message {
	return Message{
		To:        to,
		FromName:  "Acme News",
		FromEmail: "news@acme.test",
		Subject:   "Hello",
		HTML:      "<p>Hello world</p>",
		Headers:   map[string]string{"List-Unsubscribe": "<https://acme.test/unsubscribe?email=x>"},
	}
}

func TestSMTPTransport_Send(t *testing.T) {
	backend := &testBackend{}
	host, port := startSMTPServer(t, backend)
	tr := NewSMTPTransport(SMTPConfig{Host: host, Port: port, Timeout: 5 * time.Second}, testLogger())

	id, err := tr.Send(context.Background(), testMessage("ada@example.com"))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !strings.HasSuffix(id, "@acme.test>") {
		t.Errorf("message id = %q, want suffix @acme.test>", id)
	}

	msgs := backend.all()
	if len(msgs) != 1 {
		t.Fatalf("server received %d messages, want 1", len(msgs))
	}
	got := msgs[0]
	if got.from != "news@acme.test" {
		t.Errorf("MAIL FROM = %q, want %q", got.from, "news@acme.test")
	}
	if len(got.to) != 1 || got.to[0] != "ada@example.com" {
		t.Errorf("RCPT TO = %v, want [ada@example.com]", got.to)
	}
	for _, want := range []string{
		"Subject: Hello",
		`From: "Acme News" <news@acme.test>`,
		"List-Unsubscribe: <https://acme.test/unsubscribe?email=x>",
		"Content-Type: text/html; charset=utf-8",
		"Message-ID: " + id,
		"<p>Hello world</p>",
	} {
		if !strings.Contains(got.data, want) {
			t.Errorf("message data missing %q", want)
		}
	}
}

func TestSMTPTransport_Auth(t *testing.T) {
	backend := &testBackend{users: map[string]string{"mailer": "s3cret"}}
	host, port := startSMTPServer(t, backend)

	good := NewSMTPTransport(SMTPConfig{Host: host, Port: port, Username: "mailer", Password: "s3cret"}, testLogger())
	if _, err := good.Send(context.Background(), testMessage("ada@example.com")); err != nil {
		t.Fatalf("Send() with valid credentials error = %v", err)
	}
	if msgs := backend.all(); len(msgs) != 1 || msgs[0].user != "mailer" {
		t.Errorf("expected one authenticated message, got %+v", msgs)
	}

	bad := NewSMTPTransport(SMTPConfig{Host: host, Port: port, Username: "mailer", Password: "wrong"}, testLogger())
	if _, err := bad.Send(context.Background(), testMessage("ada@example.com")); err == nil {
		t.Error("Send() with wrong password should fail")
	}
}

func TestSMTPTransport_ClassifiesReplies(t *testing.T) {
	backend := &testBackend{}
	host, port := startSMTPServer(t, backend)
	tr := NewSMTPTransport(SMTPConfig{Host: host, Port: port}, testLogger())

	tests := []struct {
		to        string
		permanent bool
		code      int
	}{
		{"missing@example.com", true, 550},
		{"busy@example.com", false, 451},
	}
	for _, tt := range tests {
		_, err := tr.Send(context.Background(), testMessage(tt.to))
		var se *SendError
		if !errors.As(err, &se) {
			t.Fatalf("Send(%s) error = %v, want *SendError", tt.to, err)
		}
		if se.Permanent != tt.permanent {
			t.Errorf("Send(%s) permanent = %v, want %v", tt.to, se.Permanent, tt.permanent)
		}
		if se.Code != tt.code {
			t.Errorf("Send(%s) code = %d, want %d", tt.to, se.Code, tt.code)
		}
		if IsPermanent(err) != tt.permanent {
			t.Errorf("IsPermanent(%v) = %v, want %v", err, IsPermanent(err), tt.permanent)
		}
	}
}

func TestSMTPTransport_ConnectionRefusedIsTransient(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	tr := NewSMTPTransport(SMTPConfig{Host: "127.0.0.1", Port: port, Timeout: time.Second}, testLogger())
	_, err = tr.Send(context.Background(), testMessage("ada@example.com"))
	if err == nil {
		t.Fatal("expected error when nothing listens")
	}
	if IsPermanent(err) {
		t.Errorf("connection failure classified as permanent: %v", err)
	}
}

func selfSignedTLS(t *testing.T) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}}}
}

func TestSMTPTransport_StartTLS(t *testing.T) {
	backend := &testBackend{users: map[string]string{"mailer": "s3cret"}}
	host, port := startSMTPServerTLS(t, backend, selfSignedTLS(t))
	tr := NewSMTPTransport(SMTPConfig{
		Host:               host,
		Port:               port,
		Username:           "mailer",
		Password:           "s3cret",
		RequireTLS:         true,
		InsecureSkipVerify: true,
		Timeout:            5 * time.Second,
	}, testLogger())

	for i := 0; i < 2; i++ {
		if _, err := tr.Send(context.Background(), testMessage("ada@example.com")); err != nil {
			t.Fatalf("Send() #%d error = %v", i+1, err)
		}
	}

	msgs := backend.all()
	if len(msgs) != 2 {
		t.Fatalf("server received %d messages, want 2", len(msgs))
	}
	for i, m := range msgs {
		if !m.tls {
			t.Errorf("message %d was not sent over TLS", i+1)
		}
		if m.user != "mailer" {
			t.Errorf("message %d user = %q, want mailer", i+1, m.user)
		}
	}
}

func TestSMTPTransport_RequireTLSWithoutStartTLS(t *testing.T) {
	backend := &testBackend{}
	host, port := startSMTPServer(t, backend)
	tr := NewSMTPTransport(SMTPConfig{Host: host, Port: port, RequireTLS: true, Timeout: 5 * time.Second}, testLogger())

	_, err := tr.Send(context.Background(), testMessage("ada@example.com"))
	if err == nil {
		t.Fatal("Send() should fail when STARTTLS is required but not offered")
	}
	if IsPermanent(err) {
		t.Errorf("missing STARTTLS classified as permanent: %v", err)
	}
	if msgs := backend.all(); len(msgs) != 0 {
		t.Errorf("server received %d messages, want 0", len(msgs))
	}
}
