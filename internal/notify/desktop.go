package notify

import (
	"os/exec"
	"runtime"
)

// DesktopNotifier surfaces review outcomes on the local desktop, for
// operators running the daemon on their workstation.
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send shows the notification, quietly skipping unsupported platforms
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return d.sendMacOS(n)
	case "linux":
		return d.sendLinux(n)
	default:
		return nil
	}
}

func (d *DesktopNotifier) sendMacOS(n Notification) error {
	script := `display notification "` + body(n) + `" with title "` + n.Title + `"`
	return exec.Command("osascript", "-e", script).Run()
}

func (d *DesktopNotifier) sendLinux(n Notification) error {
	return exec.Command("notify-send", "-u", urgencyForType(n.Type), n.Title, body(n)).Run()
}

// body appends the PR reference so the popup identifies the review
// without opening anything.
func body(n Notification) string {
	if n.PRURL == "" {
		return n.Message
	}
	return n.Message + "\n" + n.PRURL
}

// urgencyForType maps the review outcome to a notify-send urgency:
// critical findings and workflow failures interrupt, everything else
// stays low-key.
func urgencyForType(t NotificationType) string {
	switch t {
	case NotifyError:
		return "critical"
	case NotifyWarning:
		return "normal"
	default:
		return "low"
	}
}
