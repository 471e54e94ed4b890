package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	alertSubject = "ALERT: sharp object detected"
	smtpTimeout  = 30 * time.Second
)

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// SMTPNotifier emails alerts, attaching the evidence frame when available.
type SMTPNotifier struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	// Timeout bounds the whole exchange when ctx carries no deadline.
	Timeout time.Duration

	dial dialFunc
}

// NewSMTPNotifier creates an SMTPNotifier. Authentication is used when a username is set
// and the server offers it.
func NewSMTPNotifier(host string, port int, username, password, from string, to []string) *SMTPNotifier {
	dialer := &net.Dialer{Timeout: smtpTimeout}
	return &SMTPNotifier{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		To:       to,
		Timeout:  smtpTimeout,
		dial:     dialer.DialContext,
	}
}

// Notify sends one email. The connection deadline follows ctx, so a stalled server
// cannot hold the caller past cancellation.
func (n *SMTPNotifier) Notify(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(n.To) == 0 {
		return fmt.Errorf("smtp notifier has no recipients")
	}

	msg, err := n.message(alert)
	if err != nil {
		return fmt.Errorf("failed to build alert email: %w", err)
	}

	addr := net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
	conn, err := n.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		timeout := n.Timeout
		if timeout <= 0 {
			timeout = smtpTimeout
		}
		deadline = time.Now().Add(timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set smtp deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := n.send(conn, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("failed to send alert email: %w", ctxErr)
		}
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}

// send runs the SMTP exchange on conn, upgrading to TLS and authenticating when offered.
func (n *SMTPNotifier) send(conn net.Conn, msg []byte) error {
	client, err := smtp.NewClient(conn, n.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.Host}); err != nil {
			return err
		}
	}
	if n.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", n.Username, n.Password, n.Host)); err != nil {
				return err
			}
		}
	}

	if err := client.Mail(n.From); err != nil {
		return err
	}
	for _, rcpt := range n.To {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (n *SMTPNotifier) message(alert Alert) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=%s\r\n\r\n",
		n.From, strings.Join(n.To, ", "), alertSubject, writer.Boundary())

	text, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(text, "SECURITY ALERT\r\n\r\nTimestamp: %s\r\nRun: %s\r\nVideo position: %s\r\nObjects: %s\r\n",
		alert.Time.Format("2006-01-02 15:04:05"),
		alert.RunID,
		(time.Duration(alert.TimestampMs) * time.Millisecond).String(),
		strings.Join(alert.Objects, ", "))

	if alert.EvidencePath != "" {
		data, err := os.ReadFile(alert.EvidencePath)
		if err != nil {
			return nil, err
		}

		name := filepath.Base(alert.EvidencePath)
		part, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"image/jpeg"},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", name)},
		})
		if err != nil {
			return nil, err
		}

		encoder := base64.NewEncoder(base64.StdEncoding, part)
		if _, err := encoder.Write(data); err != nil {
			return nil, err
		}
		if err := encoder.Close(); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return append([]byte(header), buf.Bytes()...), nil
}
