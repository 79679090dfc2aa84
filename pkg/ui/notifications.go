package ui

import (
	"fmt"
	"os/exec"
	"runtime"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// Notifier posts a desktop notification when a run ends
type Notifier struct {
	sender NotificationSender
}

// NewNotifier picks the sender for the current platform. Platforms without
// one get a notifier that does nothing.
func NewNotifier() *Notifier {
	switch runtime.GOOS {
	case "linux":
		return &Notifier{sender: &LinuxNotificationSender{}}
	case "darwin":
		return &Notifier{sender: &MacOSNotificationSender{}}
	default:
		return &Notifier{}
	}
}

// NewNotifierWithSender creates a notifier around an explicit sender
func NewNotifierWithSender(sender NotificationSender) *Notifier {
	return &Notifier{sender: sender}
}

// RunFinished reports the outcome of a crawl. Delivery failures are
// returned for logging; they never affect the run.
func (n *Notifier) RunFinished(tags, accepted, failed int) error {
	if n.sender == nil {
		return nil
	}
	title := "booruscraper finished"
	message := fmt.Sprintf("%d new posts across %d tags", accepted, tags)
	if failed > 0 {
		title = "booruscraper finished with errors"
		message = fmt.Sprintf("%s, %d failed", message, failed)
	}
	return n.sender.Send(title, message)
}
