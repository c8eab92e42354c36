package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/sony/gobreaker"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/opensource-finance/casewatch/internal/bus"
	"github.com/opensource-finance/casewatch/internal/domain"
)

type memStore struct {
	mu    sync.Mutex
	items map[string]*domain.Notification
	err   error
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]*domain.Notification)}
}

func (s *memStore) SaveNotification(ctx context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := *n
	s.items[n.ID] = &cp
	return nil
}

func (s *memStore) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *memStore) UpdateNotificationStatus(ctx context.Context, n *domain.Notification) error {
	return s.SaveNotification(ctx, n)
}

type recordingDispatcher struct {
	sent []*domain.Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, n *domain.Notification) error {
	d.sent = append(d.sent, n)
	return d.err
}

func testComplaint() *domain.Complaint {
	return &domain.Complaint{
		ID:     "CF2024001",
		Victim: domain.Victim{Name: "Sunita Rao", Phone: "9876543210", Email: "sunita@example.com"},
		Status: domain.StatusUnderInvestigation,
	}
}

func TestSelectRecipient(t *testing.T) {
	tests := []struct {
		name   string
		victim domain.Victim
		want   domain.Channel
		ok     bool
	}{
		{"PhonePreferred", domain.Victim{Phone: "9876543210", Email: "a@b.in", DeviceToken: "tok"}, domain.ChannelSMS, true},
		{"EmailWithoutPhone", domain.Victim{Email: "a@b.in", DeviceToken: "tok"}, domain.ChannelEmail, true},
		{"PushLast", domain.Victim{DeviceToken: "tok"}, domain.ChannelPush, true},
		{"NoContact", domain.Victim{Phone: "  "}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, _, ok := SelectRecipient(tt.victim, nil)
			if ch != tt.want || ok != tt.ok {
				t.Errorf("expected %s/%v, got %s/%v", tt.want, tt.ok, ch, ok)
			}
		})
	}

	t.Run("ConfiguredOrder", func(t *testing.T) {
		ch, to, _ := SelectRecipient(
			domain.Victim{Phone: "9876543210", Email: "a@b.in"},
			[]domain.Channel{domain.ChannelEmail, domain.ChannelSMS},
		)
		if ch != domain.ChannelEmail || to != "a@b.in" {
			t.Errorf("expected email first, got %s %s", ch, to)
		}
	})
}

func TestStatusChangeMessage(t *testing.T) {
	c := testComplaint()
	u := &domain.CaseUpdate{Title: "FIR Filed", Status: domain.StatusUnderInvestigation}

	subject, body := StatusChangeMessage(c, u)
	for _, want := range []string{"CF2024001", "FIR Filed", "UNDER INVESTIGATION"} {
		if !strings.Contains(body, want) {
			t.Errorf("body %q missing %q", body, want)
		}
	}
	if strings.Contains(body, "UNDER_INVESTIGATION") {
		t.Errorf("body should use the label, got %q", body)
	}
	if !strings.Contains(subject, "CF2024001") {
		t.Errorf("subject %q missing complaint id", subject)
	}
}

func TestMask(t *testing.T) {
	tests := map[string]string{
		"9876543210":         "******3210",
		"sunita@example.com": "s***@example.com",
		"123":                "****",
	}
	for in, want := range tests {
		if got := Mask(in); got != want {
			t.Errorf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()

	t.Run("OneNotificationToPhone", func(t *testing.T) {
		d := &recordingDispatcher{}
		n := NewNotifier(d, nil)

		u := &domain.CaseUpdate{ID: "cu-1", Title: "FIR Filed", Status: domain.StatusUnderInvestigation}
		note, err := n.StatusChanged(ctx, testComplaint(), u)
		if err != nil {
			t.Fatalf("StatusChanged failed: %v", err)
		}

		if len(d.sent) != 1 {
			t.Fatalf("expected 1 dispatch, got %d", len(d.sent))
		}
		if note.Channel != domain.ChannelSMS || note.Recipient != "9876543210" {
			t.Errorf("unexpected target %s %s", note.Channel, note.Recipient)
		}
		if note.CaseUpdateID != "cu-1" || note.Status != domain.DeliveryQueued || note.ID == "" {
			t.Errorf("unexpected notification: %+v", note)
		}
	})

	t.Run("NoContact", func(t *testing.T) {
		d := &recordingDispatcher{}
		n := NewNotifier(d, nil)

		c := testComplaint()
		c.Victim = domain.Victim{Name: "Anon"}
		_, err := n.Registered(ctx, c, nil)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
		if len(d.sent) != 0 {
			t.Error("expected no dispatch")
		}
	})

	t.Run("DispatchErrorReturned", func(t *testing.T) {
		d := &recordingDispatcher{err: errors.New("queue down")}
		n := NewNotifier(d, nil)

		_, err := n.Registered(ctx, testComplaint(), nil)
		if err == nil {
			t.Error("expected dispatch error")
		}
	})
}

func TestBusDispatcher(t *testing.T) {
	ctx := context.Background()
	b := bus.NewChannelBus(10)
	defer b.Close()

	received := make(chan Request, 1)
	b.Subscribe(ctx, domain.TopicNotificationRequested, func(ctx context.Context, msg *domain.Message) error {
		var req Request
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		received <- req
		return nil
	})

	store := newMemStore()
	d := NewBusDispatcher(store, b)

	n := &domain.Notification{ID: "n-1", ComplaintID: "CF2024001", Channel: domain.ChannelSMS, Recipient: "9876543210"}
	if err := d.Dispatch(ctx, n); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	select {
	case req := <-received:
		if req.NotificationID != "n-1" {
			t.Errorf("unexpected request %+v", req)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for delivery request")
	}

	saved, err := store.GetNotification(ctx, "n-1")
	if err != nil {
		t.Fatalf("notification not saved: %v", err)
	}
	if saved.Status != domain.DeliveryQueued {
		t.Errorf("expected QUEUED, got %s", saved.Status)
	}

	t.Run("StoreFailureNotPublished", func(t *testing.T) {
		failing := newMemStore()
		failing.err = errors.New("db down")
		if err := NewBusDispatcher(failing, b).Dispatch(ctx, &domain.Notification{ID: "n-2"}); err == nil {
			t.Error("expected error")
		}
		select {
		case req := <-received:
			t.Errorf("unexpected publish %+v", req)
		case <-time.After(50 * time.Millisecond):
		}
	})
}

type fakeTwilio struct {
	params *twilioApi.CreateMessageParams
	err    error
}

func (f *fakeTwilio) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

type fakePush struct {
	msg *messaging.Message
}

func (f *fakePush) Send(ctx context.Context, m *messaging.Message) (string, error) {
	f.msg = m
	return "projects/casewatch/messages/1", nil
}

func TestSenders(t *testing.T) {
	ctx := context.Background()

	t.Run("Twilio", func(t *testing.T) {
		api := &fakeTwilio{}
		s := &TwilioSender{api: api, fromNumber: "+15550001111"}

		ref, err := s.Send(ctx, "+919876543210", "ignored", "hello")
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if ref != "SM123" {
			t.Errorf("expected SM123, got %s", ref)
		}
		if *api.params.To != "+919876543210" || *api.params.From != "+15550001111" || *api.params.Body != "hello" {
			t.Errorf("unexpected params")
		}

		api.err = errors.New("401")
		if _, err := s.Send(ctx, "+919876543210", "", "hello"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("SMTP", func(t *testing.T) {
		s := NewSMTPSender("smtp.example.com", "", "user", "pass", "noreply@cybercell.gov.in", "Cyber Crime Cell")

		var gotAddr string
		var gotMsg []byte
		s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr = addr
			gotMsg = msg
			return nil
		}

		if _, err := s.Send(ctx, "sunita@example.com", "Complaint CF2024001", "body text"); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if gotAddr != "smtp.example.com:587" {
			t.Errorf("unexpected addr %s", gotAddr)
		}
		for _, want := range []string{"Subject: Complaint CF2024001", "To: sunita@example.com", "body text"} {
			if !strings.Contains(string(gotMsg), want) {
				t.Errorf("message missing %q", want)
			}
		}
	})

	t.Run("Firebase", func(t *testing.T) {
		client := &fakePush{}
		s := &FirebaseSender{client: client}

		ref, err := s.Send(ctx, "device-token", "Case update", "body")
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if ref == "" || client.msg.Token != "device-token" || client.msg.Notification.Title != "Case update" {
			t.Errorf("unexpected push message %+v", client.msg)
		}
	})

	t.Run("RouterUnknownChannel", func(t *testing.T) {
		r := NewRouter()
		if _, err := r.Send(ctx, domain.ChannelSMS, "x", "", ""); !errors.Is(err, ErrNoSender) {
			t.Errorf("expected ErrNoSender, got %v", err)
		}
	})

	t.Run("RouterFromLogConfig", func(t *testing.T) {
		r, err := NewRouterFromConfig(ctx, domain.NotificationConfig{Sender: "log"})
		if err != nil {
			t.Fatalf("NewRouterFromConfig failed: %v", err)
		}
		ref, err := r.Send(ctx, domain.ChannelPush, "token", "s", "b")
		if err != nil || !strings.HasPrefix(ref, "sim-") {
			t.Errorf("expected simulated send, got %q %v", ref, err)
		}
	})
}

type flakySender struct {
	calls int
	err   error
}

func (f *flakySender) Send(ctx context.Context, recipient, subject, body string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "ref-1", nil
}

func TestBreakerSender(t *testing.T) {
	ctx := context.Background()
	next := &flakySender{err: errors.New("provider 503")}
	b := NewBreakerSender(domain.ChannelSMS, next, 2, time.Hour)

	for i := 0; i < 2; i++ {
		if _, err := b.Send(ctx, "+919876543210", "", "hi"); err == nil || errors.Is(err, ErrSenderUnavailable) {
			t.Fatalf("attempt %d: expected provider error, got %v", i+1, err)
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", b.State())
	}

	_, err := b.Send(ctx, "+919876543210", "", "hi")
	if !errors.Is(err, ErrSenderUnavailable) {
		t.Errorf("expected ErrSenderUnavailable, got %v", err)
	}
	if next.calls != 2 {
		t.Errorf("open breaker must not call the provider, got %d calls", next.calls)
	}

	t.Run("passes results through", func(t *testing.T) {
		ok := NewBreakerSender(domain.ChannelEmail, &flakySender{}, 0, 0)
		ref, err := ok.Send(ctx, "a@example.com", "s", "b")
		if err != nil || ref != "ref-1" {
			t.Errorf("expected ref-1, got %q %v", ref, err)
		}
	})
}
