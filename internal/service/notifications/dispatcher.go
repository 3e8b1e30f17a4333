// Package notifications delivers alerts over email, SMS, and in-app channels
// with priority-based dispatch: urgent work is sent synchronously, routine
// work goes through the job queue.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openjournal-dev/review-quality-service/internal/config"
	"github.com/openjournal-dev/review-quality-service/internal/metrics"
	"github.com/openjournal-dev/review-quality-service/internal/models"
	"github.com/openjournal-dev/review-quality-service/pkg/logger"
)

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelInApp = "in_app"
)

// Notification priorities.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// Dispatch outcome states.
const (
	StateSent      = "sent"
	StateQueued    = "queued"
	StateScheduled = "scheduled"
)

// priorityToJobPriority maps notification priority onto queue priority bands.
var priorityToJobPriority = map[string]int{
	PriorityUrgent: 10,
	PriorityHigh:   8,
	PriorityNormal: 5,
	PriorityLow:    2,
}

// Request describes one notification to deliver.
type Request struct {
	Channels    []string   `json:"channels"`
	Priority    string     `json:"priority"`
	RecipientID uint       `json:"recipient_id"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	Type        string     `json:"type,omitempty"` // in-app category
	ScheduleFor *time.Time `json:"schedule_for,omitempty"`
}

// ChannelResult is the outcome of one channel attempt.
type ChannelResult struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Result is the overall dispatch outcome. Success is false when any requested
// channel failed; callers needing detail must inspect Channels.
type Result struct {
	Success  bool            `json:"success"`
	State    string          `json:"state"`
	JobID    uint            `json:"job_id,omitempty"`
	Channels []ChannelResult `json:"channels,omitempty"`
}

// EmailSender delivers email.
type EmailSender interface {
	Enabled() bool
	Send(to []string, subject, html string) error
}

// SMSSender delivers SMS via the gateway webhook.
type SMSSender interface {
	Enabled() bool
	Send(ctx context.Context, to, body string) error
}

// NotificationStore persists in-app notification rows.
type NotificationStore interface {
	Create(n *models.Notification) error
}

// JobEnqueuer defers dispatch through the analysis job queue.
type JobEnqueuer interface {
	EnqueuePayload(jobType string, priority int, payload json.RawMessage, scheduledFor *time.Time) (*models.AnalysisJob, error)
}

// Dispatcher routes notification requests to their channels.
type Dispatcher struct {
	cfg   *config.NotificationsConfig
	email EmailSender
	sms   SMSSender
	inApp NotificationStore
	queue JobEnqueuer
	log   *logger.Logger
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(
	cfg *config.NotificationsConfig,
	email EmailSender,
	sms SMSSender,
	inApp NotificationStore,
	queue JobEnqueuer,
	log *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		cfg:   cfg,
		email: email,
		sms:   sms,
		inApp: inApp,
		queue: queue,
		log:   log,
	}
}

// Send dispatches a notification request. Future ScheduleFor values defer the
// request through the delayed queue. Otherwise urgent and high priorities fan
// out synchronously while normal and low priorities are queued and the call
// returns an optimistic queued result.
func (d *Dispatcher) Send(ctx context.Context, req *Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if req.ScheduleFor != nil && req.ScheduleFor.After(now) {
		job, err := d.enqueueDeferred(req, req.ScheduleFor)
		if err != nil {
			return nil, err
		}
		return &Result{Success: true, State: StateScheduled, JobID: job.ID}, nil
	}

	if req.Priority == PriorityUrgent || req.Priority == PriorityHigh {
		return d.DeliverNow(ctx, req), nil
	}

	job, err := d.enqueueDeferred(req, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Success: true, State: StateQueued, JobID: job.ID}, nil
}

// DeliverNow attempts every requested channel independently and reports
// per-channel outcomes. Also the execution path for dequeued notify jobs.
func (d *Dispatcher) DeliverNow(ctx context.Context, req *Request) *Result {
	result := &Result{Success: true, State: StateSent}
	for _, channel := range req.Channels {
		cr := d.deliverChannel(ctx, channel, req)
		if !cr.Success {
			result.Success = false
		}
		result.Channels = append(result.Channels, cr)
	}
	return result
}

// DecodeRequest parses a deferred notification job payload.
func DecodeRequest(payload json.RawMessage) (*Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to decode notification payload: %w", err)
	}
	return &req, nil
}

func (d *Dispatcher) enqueueDeferred(req *Request, scheduledFor *time.Time) (*models.AnalysisJob, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification payload: %w", err)
	}
	jobPriority, ok := priorityToJobPriority[req.Priority]
	if !ok {
		jobPriority = priorityToJobPriority[PriorityNormal]
	}
	return d.queue.EnqueuePayload(models.JobTypeNotify, jobPriority, payload, scheduledFor)
}

func (d *Dispatcher) deliverChannel(ctx context.Context, channel string, req *Request) ChannelResult {
	result := ChannelResult{Channel: channel}

	var err error
	switch channel {
	case ChannelEmail:
		err = d.sendEmail(req)
	case ChannelSMS:
		err = d.sendSMS(ctx, req)
	case ChannelInApp:
		err = d.sendInApp(req)
	default:
		err = fmt.Errorf("unknown channel: %s", channel)
	}

	if err != nil {
		result.Error = err.Error()
		metrics.RecordNotificationSent(channel, "failed")
		d.log.Warn().
			Str("channel", channel).
			Uint("recipient_id", req.RecipientID).
			Err(err).
			Msg("Notification channel delivery failed")
		return result
	}

	result.Success = true
	metrics.RecordNotificationSent(channel, "sent")
	return result
}

func (d *Dispatcher) sendEmail(req *Request) error {
	if d.email == nil || !d.email.Enabled() {
		return fmt.Errorf("email channel is disabled")
	}
	if req.Email == "" {
		return fmt.Errorf("request has no email address")
	}
	return d.email.Send([]string{req.Email}, req.Subject, req.Body)
}

func (d *Dispatcher) sendSMS(ctx context.Context, req *Request) error {
	if d.sms == nil || !d.sms.Enabled() {
		return fmt.Errorf("sms channel is disabled")
	}
	if req.Phone == "" {
		return fmt.Errorf("request has no phone number")
	}
	return d.sms.Send(ctx, req.Phone, req.Body)
}

func (d *Dispatcher) sendInApp(req *Request) error {
	if d.inApp == nil || !d.cfg.InApp.Enabled {
		return fmt.Errorf("in-app channel is disabled")
	}
	if req.RecipientID == 0 {
		return fmt.Errorf("request has no recipient id")
	}
	notificationType := req.Type
	if notificationType == "" {
		notificationType = "info"
	}
	return d.inApp.Create(&models.Notification{
		RecipientID: req.RecipientID,
		Title:       req.Subject,
		Message:     req.Body,
		Type:        notificationType,
	})
}

func validate(req *Request) error {
	if len(req.Channels) == 0 {
		return fmt.Errorf("request has no channels")
	}
	for _, c := range req.Channels {
		switch c {
		case ChannelEmail, ChannelSMS, ChannelInApp:
		default:
			return fmt.Errorf("unknown channel: %s", c)
		}
	}
	switch req.Priority {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
	default:
		return fmt.Errorf("unknown priority: %s", req.Priority)
	}
	return nil
}
