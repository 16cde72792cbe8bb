package notification

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/prohmpiriya/event-booking-saga/internal/booking/domain"
	"github.com/prohmpiriya/event-booking-saga/pkg/logger"
	"go.uber.org/zap"
)

// ErrNoRecipient is returned when a message has no address to deliver to
var ErrNoRecipient = errors.New("notification has no recipient")

// Message is a rendered notification
type Message struct {
	To        string
	Subject   string
	Body      string
	BookingID string
	EventType domain.BookingEventType
}

// Notifier delivers rendered notifications
type Notifier interface {
	Send(ctx context.Context, msg *Message) error
}

// Compose renders the notification for a booking event
func Compose(evt *domain.BookingEvent) (*Message, error) {
	var subject, opening string
	switch evt.EventType {
	case domain.BookingEventConfirmed:
		subject = fmt.Sprintf("Booking confirmed: %s", evt.Reference)
		opening = "Your booking is confirmed."
	case domain.BookingEventCancelled:
		subject = fmt.Sprintf("Booking cancelled: %s", evt.Reference)
		opening = "Your booking has been cancelled."
	default:
		return nil, fmt.Errorf("unsupported booking event type %q", evt.EventType)
	}

	var b strings.Builder
	b.WriteString(opening + "\n\n")
	fmt.Fprintf(&b, "Reference: %s\n", evt.Reference)
	if evt.EventTitle != "" {
		fmt.Fprintf(&b, "Event: %s\n", evt.EventTitle)
	}
	if evt.EventDate != nil {
		fmt.Fprintf(&b, "Date: %s\n", evt.EventDate.Format("Mon, 02 Jan 2006 15:04 MST"))
	}
	fmt.Fprintf(&b, "Tickets: %d\n", evt.TicketCount)
	fmt.Fprintf(&b, "Total: %s\n", evt.TotalPrice)

	return &Message{
		To:        evt.Email,
		Subject:   subject,
		Body:      b.String(),
		BookingID: evt.BookingID,
		EventType: evt.EventType,
	}, nil
}

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Get()
	}
	return &LogNotifier{log: log}
}

// Send logs the message
func (n *LogNotifier) Send(ctx context.Context, msg *Message) error {
	n.log.WithContext(ctx).Info("Notification",
		zap.String("event_type", string(msg.EventType)),
		zap.String("booking_id", msg.BookingID),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

// SendMailFunc matches smtp.SendMail
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig configures the SMTP notifier
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier sends plain-text mail
type SMTPNotifier struct {
	addr     string
	auth     smtp.Auth
	from     string
	sendMail SendMailFunc
}

// NewSMTPNotifier creates a new SMTPNotifier. Auth is only used when a username is set.
func NewSMTPNotifier(cfg *SMTPConfig) *SMTPNotifier {
	n := &SMTPNotifier{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from:     cfg.From,
		sendMail: smtp.SendMail,
	}
	if cfg.Username != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return n
}

// Send delivers msg
func (n *SMTPNotifier) Send(ctx context.Context, msg *Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))

	if err := n.sendMail(n.addr, n.auth, n.from, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}
	return nil
}
