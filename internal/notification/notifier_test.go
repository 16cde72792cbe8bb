package notification

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmedEvent() *domain.BookingEvent {
	date := time.Date(2026, 12, 1, 19, 0, 0, 0, time.UTC)
	return &domain.BookingEvent{
		EventID:     "evt-1",
		EventType:   domain.BookingEventConfirmed,
		BookingID:   "b1",
		UserID:      "u1",
		Email:       "fan@example.com",
		EventTitle:  "Concert",
		TicketCount: 2,
		TotalPrice:  domain.NewMoney(200, 0),
		Reference:   "BOOK-1A2B3C4D",
		EventDate:   &date,
		OccurredAt:  time.Now(),
	}
}

func TestCompose(t *testing.T) {
	msg, err := Compose(confirmedEvent())
	require.NoError(t, err)
	assert.Equal(t, "fan@example.com", msg.To)
	assert.Equal(t, "Booking confirmed: BOOK-1A2B3C4D", msg.Subject)
	assert.Contains(t, msg.Body, "Event: Concert")
	assert.Contains(t, msg.Body, "Tickets: 2")
	assert.Contains(t, msg.Body, "Total: 200.00")
	assert.Contains(t, msg.Body, "Tue, 01 Dec 2026")

	cancelled := confirmedEvent()
	cancelled.EventType = domain.BookingEventCancelled
	cancelled.EventTitle = ""
	cancelled.EventDate = nil
	msg, err = Compose(cancelled)
	require.NoError(t, err)
	assert.Equal(t, "Booking cancelled: BOOK-1A2B3C4D", msg.Subject)
	assert.NotContains(t, msg.Body, "Event:")
	assert.NotContains(t, msg.Body, "Date:")

	unknown := confirmedEvent()
	unknown.EventType = "BookingExpired"
	_, err = Compose(unknown)
	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(logger.Nop())
	msg, err := Compose(confirmedEvent())
	require.NoError(t, err)
	assert.NoError(t, n.Send(context.Background(), msg))
}

func TestSMTPNotifier(t *testing.T) {
	var (
		gotAddr string
		gotAuth smtp.Auth
		gotFrom string
		gotTo   []string
		gotMsg  string
	)
	n := NewSMTPNotifier(&SMTPConfig{Host: "mail.local", Port: 1025, From: "no-reply@example.com"})
	n.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, string(msg)
		return nil
	}

	msg, err := Compose(confirmedEvent())
	require.NoError(t, err)
	require.NoError(t, n.Send(context.Background(), msg))

	assert.Equal(t, "mail.local:1025", gotAddr)
	assert.Nil(t, gotAuth)
	assert.Equal(t, "no-reply@example.com", gotFrom)
	assert.Equal(t, []string{"fan@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: no-reply@example.com\r\nTo: fan@example.com\r\n"))
	assert.Contains(t, gotMsg, "Subject: Booking confirmed: BOOK-1A2B3C4D\r\n")
	assert.Contains(t, gotMsg, "Tickets: 2\r\n")
}

func TestSMTPNotifier_Errors(t *testing.T) {
	n := NewSMTPNotifier(&SMTPConfig{Host: "mail.local", Port: 25, Username: "user", Password: "pw", From: "x@example.com"})
	assert.NotNil(t, n.auth)

	n.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := n.Send(context.Background(), &Message{Subject: "s"})
	assert.ErrorIs(t, err, ErrNoRecipient)

	err = n.Send(context.Background(), &Message{To: "fan@example.com", Subject: "s"})
	assert.ErrorContains(t, err, "connection refused")
}
