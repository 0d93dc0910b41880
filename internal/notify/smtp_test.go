package notify

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	date := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msg := string(buildMessage("ops@example.com", "jane@example.com", "Report due", "<p>hi</p>", "<id@example.com>", date))

	head, body, ok := strings.Cut(msg, "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, head, "From: ops@example.com")
	assert.Contains(t, head, "To: jane@example.com")
	assert.Contains(t, head, "Subject: Report due")
	assert.Contains(t, head, "Message-ID: <id@example.com>")
	assert.Contains(t, head, "Content-Type: text/html")
	assert.Equal(t, "<p>hi</p>", body)
}

func TestBuildMessage_EncodesNonASCIISubject(t *testing.T) {
	msg := string(buildMessage("a@x", "b@x", "Überfällig", "", "<id@x>", time.Now()))
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
}

func TestSendEmail_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: port, From: "ops@example.com"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = m.SendEmail(ctx, "jane@example.com", "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dialing smtp 127.0.0.1:"+strconv.Itoa(port))
}
