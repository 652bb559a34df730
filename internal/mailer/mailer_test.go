package mailer_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/emonklabs/emonk/internal/mailer"
	"github.com/emonklabs/emonk/internal/testutil"
)

func TestNewSelectsBackend(t *testing.T) {
	logger := testutil.DiscardLogger()

	m, err := mailer.New(mailer.Config{}, logger)
	testutil.NoError(t, err)
	_, ok := m.(*mailer.LogMailer)
	testutil.True(t, ok, "empty backend defaults to log")

	m, err = mailer.New(mailer.Config{Backend: "log"}, logger)
	testutil.NoError(t, err)
	_, ok = m.(*mailer.LogMailer)
	testutil.True(t, ok)

	m, err = mailer.New(mailer.Config{
		Backend: "smtp",
		Host:    "smtp.example.com",
		From:    "emonk@example.com",
	}, logger)
	testutil.NoError(t, err)
	_, ok = m.(*mailer.SMTPMailer)
	testutil.True(t, ok)

	_, err = mailer.New(mailer.Config{Backend: "carrier-pigeon"}, logger)
	testutil.ErrorContains(t, err, "unknown mailer backend")
}

func TestSMTPMailerConfigValidation(t *testing.T) {
	_, err := mailer.NewSMTPMailer(mailer.Config{From: "emonk@example.com"})
	testutil.ErrorContains(t, err, "requires a host")

	_, err = mailer.NewSMTPMailer(mailer.Config{Host: "smtp.example.com"})
	testutil.ErrorContains(t, err, "requires a from address")
}

func TestLogMailerWritesToLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	m := mailer.NewLogMailer(logger)
	err := m.Send(context.Background(), "user@example.com", "Reminder", "water the plants")
	testutil.NoError(t, err)

	out := buf.String()
	testutil.Contains(t, out, "user@example.com")
	testutil.Contains(t, out, "Reminder")
	testutil.Contains(t, out, "water the plants")
}
