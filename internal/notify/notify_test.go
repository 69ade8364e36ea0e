package notify

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSlackMessage_Build(t *testing.T) {
	msg := SlackMessage{
		Text: "Review completed",
		Attachments: []SlackAttachment{
			{
				Color: "good",
				Title: "9f0c2a1e",
				Text:  "Found 3 issues in 5 files",
			},
		},
	}

	payload, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	if len(payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	// Mock Slack server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Test",
		Message: "Test message",
		Type:    NotifyInfo,
	})

	if err != nil {
		t.Errorf("Send failed: %v", err)
	}
}

func TestSlackNotifier_SendRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{Title: "Test"})
	if err == nil {
		t.Fatal("Expected error for 429")
	}
	if got := StatusCode(err); got != 429 {
		t.Errorf("StatusCode(err) = %d, want 429", got)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}

func TestDesktopUrgency(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifyError, "critical"},
		{NotifyWarning, "normal"},
		{NotifySuccess, "low"},
		{NotifyInfo, "low"},
	}

	for _, tt := range tests {
		got := urgencyForType(tt.typ)
		if got != tt.want {
			t.Errorf("urgencyForType(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestDesktopBodyIncludesPRURL(t *testing.T) {
	n := Notification{
		Message: "Found 3 issues in 5 files",
		PRURL:   "https://github.com/acme/widgets/pull/42",
	}
	got := body(n)
	want := "Found 3 issues in 5 files\nhttps://github.com/acme/widgets/pull/42"
	if got != want {
		t.Errorf("body() = %q, want %q", got, want)
	}

	n.PRURL = ""
	if got := body(n); got != "Found 3 issues in 5 files" {
		t.Errorf("body() without PR = %q", got)
	}
}

func TestDesktopDisabledIsNoop(t *testing.T) {
	d := NewDesktopNotifier(false)
	if err := d.Send(Notification{Title: "Test"}); err != nil {
		t.Errorf("disabled Send() error = %v", err)
	}
}
