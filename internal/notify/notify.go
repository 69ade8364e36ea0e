// Package notify delivers review verdicts and workflow failures to
// operators. The notification type encodes the review outcome: clean
// or minor reviews arrive as a success, major findings as a warning,
// critical findings and workflow errors as an error.
package notify

// NotificationType classifies a notification by urgency
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification is one review outcome or failure report
type Notification struct {
	Title       string
	Message     string
	Type        NotificationType
	ExecutionID string // workflow execution the message belongs to
	PRURL       string // reviewed pull request, when known
}

// Notifier delivers notifications over one channel
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier fans a notification out to several channels. Every
// channel is attempted; the last failure is reported.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier combines notifiers into one
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send delivers the notification on every channel
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier swallows notifications, for tests and disabled setups
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
