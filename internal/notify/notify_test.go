package notify

import (
	"context"
	"net/smtp"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSMTP_Send(t *testing.T) {
	var (
		gotAddr string
		gotAuth smtp.Auth
		gotFrom string
		gotTo   []string
		gotMsg  string
	)
	s := NewSMTP(SMTPConfig{Host: "mail.local", Port: 587, Username: "bot", Password: "pw", From: "shop@example.com"})
	s.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, string(msg)
		return nil
	}

	err := s.Send(context.Background(), "admin@example.com", "Low Stock Alert: Olives", "<p>hi</p>")
	require.NoError(t, err)

	assert.Equal(t, "mail.local:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "shop@example.com", gotFrom)
	assert.Equal(t, []string{"admin@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "To: admin@example.com\r\n")
	assert.Contains(t, gotMsg, "Subject: Low Stock Alert: Olives\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html")
	assert.Contains(t, gotMsg, "Date: Thu, 02 Jan 2025 03:04:05 +0000\r\n")
	assert.Contains(t, gotMsg, "\r\n\r\n<p>hi</p>")
}

func TestSMTP_NoAuthWithoutUsername(t *testing.T) {
	s := NewSMTP(SMTPConfig{Host: "localhost", Port: 25, From: "a@b"})
	s.send = func(_ string, a smtp.Auth, _ string, _ []string, _ []byte) error {
		assert.Nil(t, a)
		return nil
	}
	require.NoError(t, s.Send(context.Background(), "x@y", "s", "b"))
}

func TestSMTP_Errors(t *testing.T) {
	s := NewSMTP(SMTPConfig{Host: "localhost", Port: 25})
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("relay refused")
	}

	require.Error(t, s.Send(context.Background(), "", "s", "b"))

	err := s.Send(context.Background(), "x@y", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay refused")
}

func TestSMTP_ContextDone(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	s := NewSMTP(SMTPConfig{Host: "localhost", Port: 25})
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		<-release
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.Send(ctx, "x@y", "s", "b")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLog_Send(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLog(zap.New(core))

	require.NoError(t, n.Send(context.Background(), "admin@example.com", "subj", "<p>body</p>"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Notification", entries[0].Message)
	assert.Equal(t, "subj", entries[0].ContextMap()["subject"])
}
