/*
Package notify sends tuition reminders to parents.

The office has no SMS provider contract yet, so the only Notifier is
LogNotifier, which writes each message to the log. Swapping in a real
gateway means implementing Notifier; Remind stays unchanged.
*/
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/shuttle-admin/billing"
)

// Message is one outgoing reminder.
type Message struct {
	ID        string
	StudentID billing.StudentID
	To        string
	Body      string
}

// Notifier delivers a message. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier logs messages instead of sending them.
type LogNotifier struct {
	Logger logrus.FieldLogger
}

func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.Logger.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"student_id": msg.StudentID,
		"to":         msg.To,
	}).Info(msg.Body)
	return nil
}

// =============================================================================
// REMINDERS
// =============================================================================

// Result counts the outcome of a reminder run.
type Result struct {
	Sent    int      `json:"sent"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// ReminderText renders the message body for one overdue record.
func ReminderText(r billing.OverdueRecord) string {
	name := r.Student.ParentName
	if name == "" {
		name = "Sayin veli"
	}
	return fmt.Sprintf(
		"%s, %s icin %d aylik servis ucretinden %s gecikmis odeme bulunmaktadir. Toplam odenen: %s.",
		name, r.Student.Name, r.MonthsPassed, r.OverdueAmount, r.TotalPaid,
	)
}

// Remind sends one message per overdue student with a phone number.
// A failed send is counted and does not stop the run.
func Remind(ctx context.Context, n Notifier, records []billing.OverdueRecord) Result {
	var res Result
	for _, r := range records {
		phone := strings.TrimSpace(r.Student.Phone)
		if phone == "" {
			res.Skipped++
			continue
		}

		msg := Message{
			ID:        uuid.NewString(),
			StudentID: r.Student.ID,
			To:        phone,
			Body:      ReminderText(r),
		}
		if err := n.Send(ctx, msg); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("student %d: %v", r.Student.ID, err))
			continue
		}
		res.Sent++
	}
	return res
}
