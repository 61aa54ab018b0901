package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/hitoshi/jobwatch/internal/model"
)

// EmailAdapter はSMTP経由でメール通知を送信するチャネルアダプタ。
type EmailAdapter struct {
	host     string
	port     int
	username string
	password string
	from     string

	// sendMail はテストで差し替えるための送信関数。
	sendMail func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailAdapter はEmailAdapterを生成する。
func NewEmailAdapter(host string, port int, username, password, from string) *EmailAdapter {
	return &EmailAdapter{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		sendMail: smtp.SendMail,
	}
}

// Name はチャネル識別子を返す。
func (a *EmailAdapter) Name() model.Channel {
	return model.ChannelEmail
}

// Target は購読者のメールアドレスを返す。
func (a *EmailAdapter) Target(subscriber *model.Subscriber) string {
	return subscriber.EmailAddress
}

// Deliver はメッセージをSMTPで送信する。
func (a *EmailAdapter) Deliver(ctx context.Context, target string, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", a.from)
	fmt.Fprintf(&b, "To: %s\r\n", target)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	var auth smtp.Auth
	if a.username != "" {
		auth = smtp.PlainAuth("", a.username, a.password, a.host)
	}

	addr := fmt.Sprintf("%s:%d", a.host, a.port)
	if err := a.sendMail(addr, auth, a.from, []string{target}, []byte(b.String())); err != nil {
		return fmt.Errorf("メールの送信に失敗しました: %w", err)
	}
	return nil
}

var _ ChannelAdapter = (*EmailAdapter)(nil)
