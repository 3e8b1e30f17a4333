package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/openjournal-dev/review-quality-service/internal/config"
	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// Mock channel senders for testing
type mockEmailSender struct {
	enabled bool
	sendErr error
	sent    []string
}

func (m *mockEmailSender) Enabled() bool { return m.enabled }

func (m *mockEmailSender) Send(to []string, subject, html string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, to...)
	return nil
}

type mockSMSSender struct {
	enabled bool
	sendErr error
	sent    []string
}

func (m *mockSMSSender) Enabled() bool { return m.enabled }

func (m *mockSMSSender) Send(ctx context.Context, to, body string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, to)
	return nil
}

type mockNotificationStore struct {
	created []*models.Notification
}

func (m *mockNotificationStore) Create(n *models.Notification) error {
	m.created = append(m.created, n)
	return nil
}

type mockJobEnqueuer struct {
	jobs []enqueuedJob
}

type enqueuedJob struct {
	jobType      string
	priority     int
	payload      json.RawMessage
	scheduledFor *time.Time
}

func (m *mockJobEnqueuer) EnqueuePayload(jobType string, priority int, payload json.RawMessage, scheduledFor *time.Time) (*models.AnalysisJob, error) {
	m.jobs = append(m.jobs, enqueuedJob{jobType, priority, payload, scheduledFor})
	return &models.AnalysisJob{ID: uint(len(m.jobs)), JobType: jobType, Priority: priority}, nil
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	email      *mockEmailSender
	sms        *mockSMSSender
	inApp      *mockNotificationStore
	queue      *mockJobEnqueuer
}

func newDispatcherFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		email: &mockEmailSender{enabled: true},
		sms:   &mockSMSSender{enabled: true},
		inApp: &mockNotificationStore{},
		queue: &mockJobEnqueuer{},
	}
	cfg := &config.NotificationsConfig{InApp: config.InAppConfig{Enabled: true}}
	f.dispatcher = NewDispatcher(cfg, f.email, f.sms, f.inApp, f.queue, logger.Nop())
	return f
}

func TestSend_UrgentDeliversSynchronously(t *testing.T) {
	f := newDispatcherFixture()

	result, err := f.dispatcher.Send(context.Background(), &Request{
		Channels:    []string{ChannelEmail, ChannelInApp},
		Priority:    PriorityUrgent,
		RecipientID: 7,
		Email:       "editor@journal.example",
		Subject:     "Review flagged",
		Body:        "A review needs attention.",
	})
	if err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	if result.State != StateSent {
		t.Errorf("State = %s, want %s", result.State, StateSent)
	}
	if !result.Success {
		t.Error("Success = false, want true with all channels healthy")
	}
	if len(result.Channels) != 2 {
		t.Fatalf("Channel results = %d, want 2", len(result.Channels))
	}
	if len(f.email.sent) != 1 || f.email.sent[0] != "editor@journal.example" {
		t.Errorf("Email sent to %v, want the request address", f.email.sent)
	}
	if len(f.inApp.created) != 1 || f.inApp.created[0].RecipientID != 7 {
		t.Error("In-app notification not stored for the recipient")
	}
	if len(f.queue.jobs) != 0 {
		t.Error("Urgent delivery must not go through the queue")
	}
}

func TestSend_PartialChannelFailure(t *testing.T) {
	f := newDispatcherFixture()
	f.sms.sendErr = errors.New("gateway unreachable")

	result, err := f.dispatcher.Send(context.Background(), &Request{
		Channels:    []string{ChannelEmail, ChannelSMS},
		Priority:    PriorityHigh,
		RecipientID: 7,
		Email:       "editor@journal.example",
		Phone:       "+15550100",
		Subject:     "Reminder",
		Body:        "Your review is due.",
	})
	if err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	if result.Success {
		t.Error("Success = true despite a failed channel")
	}
	byChannel := make(map[string]ChannelResult)
	for _, cr := range result.Channels {
		byChannel[cr.Channel] = cr
	}
	if !byChannel[ChannelEmail].Success {
		t.Error("Email channel should succeed independently of the SMS failure")
	}
	if byChannel[ChannelSMS].Success || byChannel[ChannelSMS].Error == "" {
		t.Errorf("SMS result = %+v, want a failure with its error preserved", byChannel[ChannelSMS])
	}
}

func TestSend_NormalPriorityIsQueued(t *testing.T) {
	f := newDispatcherFixture()

	result, err := f.dispatcher.Send(context.Background(), &Request{
		Channels:    []string{ChannelInApp},
		Priority:    PriorityNormal,
		RecipientID: 7,
		Subject:     "Profile updated",
		Body:        "Your quality profile was recomputed.",
	})
	if err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	if result.State != StateQueued {
		t.Errorf("State = %s, want %s", result.State, StateQueued)
	}
	if result.JobID == 0 {
		t.Error("Queued result missing the job id")
	}
	if len(f.inApp.created) != 0 {
		t.Error("Normal priority must not deliver synchronously")
	}

	if len(f.queue.jobs) != 1 {
		t.Fatalf("Enqueued jobs = %d, want 1", len(f.queue.jobs))
	}
	job := f.queue.jobs[0]
	if job.jobType != models.JobTypeNotify {
		t.Errorf("Job type = %s, want %s", job.jobType, models.JobTypeNotify)
	}
	if job.priority != 5 {
		t.Errorf("Job priority = %d, want 5 for normal notifications", job.priority)
	}
	if job.scheduledFor != nil {
		t.Error("Immediate queued job must not carry a schedule")
	}

	decoded, err := DecodeRequest(job.payload)
	if err != nil {
		t.Fatalf("DecodeRequest() failed: %v", err)
	}
	if decoded.Subject != "Profile updated" || decoded.RecipientID != 7 {
		t.Errorf("Round-tripped request = %+v, payload lost fields", decoded)
	}
}

func TestSend_FutureScheduleDefersAnyPriority(t *testing.T) {
	f := newDispatcherFixture()
	when := time.Now().UTC().Add(24 * time.Hour)

	result, err := f.dispatcher.Send(context.Background(), &Request{
		Channels:    []string{ChannelEmail},
		Priority:    PriorityUrgent,
		Email:       "reviewer@example.edu",
		Subject:     "Deadline approaching",
		Body:        "Three days remain.",
		ScheduleFor: &when,
	})
	if err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	if result.State != StateScheduled {
		t.Errorf("State = %s, want %s", result.State, StateScheduled)
	}
	if len(f.email.sent) != 0 {
		t.Error("Scheduled notification delivered immediately")
	}
	if len(f.queue.jobs) != 1 {
		t.Fatalf("Enqueued jobs = %d, want 1", len(f.queue.jobs))
	}
	job := f.queue.jobs[0]
	if job.scheduledFor == nil || !job.scheduledFor.Equal(when) {
		t.Errorf("Job scheduledFor = %v, want %v", job.scheduledFor, when)
	}
	if job.priority != 10 {
		t.Errorf("Job priority = %d, urgent maps to 10", job.priority)
	}
}

func TestSend_Validation(t *testing.T) {
	f := newDispatcherFixture()

	cases := []struct {
		name string
		req  *Request
	}{
		{"no channels", &Request{Priority: PriorityNormal}},
		{"unknown channel", &Request{Channels: []string{"carrier_pigeon"}, Priority: PriorityNormal}},
		{"unknown priority", &Request{Channels: []string{ChannelEmail}, Priority: "whenever"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.dispatcher.Send(context.Background(), tc.req); err == nil {
				t.Error("Send() accepted an invalid request")
			}
		})
	}
}

func TestDeliverNow_DisabledChannelFails(t *testing.T) {
	f := newDispatcherFixture()
	f.email.enabled = false

	result := f.dispatcher.DeliverNow(context.Background(), &Request{
		Channels: []string{ChannelEmail},
		Priority: PriorityUrgent,
		Email:    "editor@journal.example",
		Subject:  "x",
		Body:     "y",
	})
	if result.Success {
		t.Error("Delivery over a disabled channel should fail")
	}
}
