// Package mail implements the message transport over IMAP (inbound
// polling) and SMTP (outbound delivery).
package mail

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/config"
	"github.com/mikey/ta-triage/internal/core"
)

// IMAPTransport fetches inbound mail by polling an IMAP mailbox and sends
// outbound mail over SMTP with PLAIN auth. Each fetch opens a fresh IMAP
// session.
type IMAPTransport struct {
	cfg    config.MailConfig
	logger *zap.Logger
}

// NewIMAPTransport creates a transport from the mail configuration.
func NewIMAPTransport(cfg config.MailConfig, logger *zap.Logger) *IMAPTransport {
	return &IMAPTransport{
		cfg:    cfg,
		logger: logger,
	}
}

// FetchSince returns messages received after the given time.
func (t *IMAPTransport) FetchSince(ctx context.Context, since time.Time) ([]*core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", t.cfg.IMAPServer, t.cfg.IMAPPort)
	c, err := imapclient.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
	}
	defer c.Logout()

	if err := c.Login(t.cfg.Username, t.cfg.Password); err != nil {
		return nil, fmt.Errorf("failed to log in to IMAP server: %w", err)
	}

	if _, err := c.Select(t.cfg.Mailbox, true); err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", t.cfg.Mailbox, err)
	}

	// SINCE has date granularity; received times are filtered again below.
	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, section.FetchItem()}

	fetched := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, fetched)
	}()

	var msgs []*core.Message
	for raw := range fetched {
		msg, err := t.buildMessage(raw, section)
		if err != nil {
			t.logger.Warn("Skipping unparseable message", zap.Error(err))
			continue
		}
		if msg.ReceivedAt.After(since) {
			msgs = append(msgs, msg)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return msgs, nil
}

func (t *IMAPTransport) buildMessage(raw *imap.Message, section *imap.BodySectionName) (*core.Message, error) {
	env := raw.Envelope
	if env == nil {
		return nil, fmt.Errorf("message has no envelope")
	}
	if len(env.From) == 0 {
		return nil, fmt.Errorf("message has no sender")
	}

	from := env.From[0]
	senderAddr := fmt.Sprintf("%s@%s", from.MailboxName, from.HostName)
	senderName := decodeHeader(from.PersonalName)
	if senderName == "" {
		senderName = from.MailboxName
	}

	body, err := readBody(raw.GetBody(section))
	if err != nil {
		return nil, err
	}

	receivedAt := env.Date
	if receivedAt.IsZero() {
		receivedAt = raw.InternalDate
	}

	id := env.MessageId
	if id == "" {
		id = fmt.Sprintf("%s-%d", senderAddr, receivedAt.UnixNano())
	}
	threadID := env.InReplyTo
	if threadID == "" {
		threadID = id
	}

	return &core.Message{
		ID:         id,
		SenderAddr: senderAddr,
		SenderName: senderName,
		Subject:    decodeHeader(env.Subject),
		Body:       body,
		ReceivedAt: receivedAt,
		ThreadID:   threadID,
	}, nil
}

// Send delivers an outgoing message over SMTP.
func (t *IMAPTransport) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", t.cfg.SMTPServer, t.cfg.SMTPPort)
	auth := sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", t.cfg.Username)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := gosmtp.SendMail(addr, auth, t.cfg.Username, []string{to}, strings.NewReader(msg.String())); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}

	t.logger.Debug("Delivered message",
		zap.String("to", to),
		zap.String("subject", subject))
	return nil
}
