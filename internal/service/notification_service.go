package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/jobs"
	"github.com/noah-isme/sma-attendance-api/pkg/messenger"
	"github.com/noah-isme/sma-attendance-api/pkg/regional"
)

const notificationJobType = "guardian_notification"

// NotificationConfig configures the guardian dispatcher.
type NotificationConfig struct {
	Enabled    bool
	SchoolName string
	Queue      jobs.QueueConfig
}

type templateKey struct {
	assembly bool
	status   models.AttendanceStatus
}

var messageTemplates = map[templateKey]string{
	{assembly: true, status: models.AttendanceStatusLate}:    "{name} ({classroom}) arrived late to the morning assembly on {date} at {time}.",
	{assembly: true, status: models.AttendanceStatusAbsent}:  "{name} ({classroom}) was marked absent from the morning assembly on {date} at {time}.",
	{assembly: false, status: models.AttendanceStatusLate}:   "{name} ({classroom}) was late for period {period} on {date} at {time}.",
	{assembly: false, status: models.AttendanceStatusAbsent}: "{name} ({classroom}) was marked absent for period {period} on {date} at {time}.",
}

// NotificationService renders guardian messages for late and absent marks and hands them
// to an in-memory batch queue that delivers through the messenger.
type NotificationService struct {
	messenger messenger.Messenger
	queue     *jobs.BatchQueue
	clock     *regional.Clock
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       NotificationConfig
}

// NewNotificationService constructs the dispatcher and its queue. Call Shutdown before exit.
func NewNotificationService(m messenger.Messenger, clock *regional.Clock, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = regional.New(0)
	}
	s := &NotificationService{
		messenger: m,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}

	queueCfg := cfg.Queue
	queueCfg.Logger = logger
	queueCfg.OnFailure = s.onFailure
	s.queue = jobs.NewBatchQueue("notifications", s.deliver, queueCfg)
	metrics.RegisterBacklogGauge(func() float64 { return float64(s.queue.Pending()) })
	return s
}

// Notify dispatches a single attendance event.
func (s *NotificationService) Notify(ctx context.Context, event models.AttendanceEvent) error {
	return s.NotifyMany(ctx, []models.AttendanceEvent{event})
}

// NotifyMany renders every notifiable event and enqueues them together. Events for
// statuses other than late or absent, and students without a guardian address, are dropped.
func (s *NotificationService) NotifyMany(ctx context.Context, events []models.AttendanceEvent) error {
	if !s.cfg.Enabled || len(events) == 0 {
		return nil
	}

	batch := make([]jobs.Job, 0, len(events))
	for _, event := range events {
		if !event.Status.Notifiable() {
			continue
		}
		if !event.Student.HasGuardian() {
			s.logger.Debug("no guardian address registered, notification dropped",
				zap.String("student_id", event.Student.ID))
			s.metrics.RecordNotification(NotificationSkipped)
			continue
		}
		task := models.NotificationTask{
			Destination: *event.Student.GuardianAddress,
			Message:     s.Render(event),
			StudentID:   event.Student.ID,
		}
		batch = append(batch, jobs.Job{
			ID:      uuid.NewString(),
			Type:    notificationJobType,
			Subject: task.StudentID,
			Payload: task,
		})
	}
	if len(batch) == 0 {
		return nil
	}

	if err := s.queue.Enqueue(batch...); err != nil {
		return fmt.Errorf("enqueue notifications: %w", err)
	}
	for range batch {
		s.metrics.RecordNotification(NotificationQueued)
	}
	return nil
}

// Render builds the guardian message for an event.
func (s *NotificationService) Render(event models.AttendanceEvent) string {
	key := templateKey{assembly: event.Period == models.AssemblyPeriod, status: event.Status}
	tmpl, ok := messageTemplates[key]
	if !ok {
		tmpl = "{name} ({classroom}) was marked " + strings.ToLower(string(event.Status)) + " on {date}."
	}

	recordedAt := event.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = s.clock.Instant()
	}

	msg := strings.NewReplacer(
		"{name}", event.Student.FullName,
		"{classroom}", event.Student.ClassroomLabel,
		"{date}", regional.FormatDay(event.Date),
		"{time}", s.clock.Shift(recordedAt).Format("15:04"),
		"{period}", fmt.Sprintf("%d", event.Period),
	).Replace(tmpl)

	if s.cfg.SchoolName != "" {
		msg = "[" + s.cfg.SchoolName + "] " + msg
	}
	return msg
}

// Status reports backlog depth.
func (s *NotificationService) Status() models.NotificationQueueStatus {
	return models.NotificationQueueStatus{
		Pending:     s.queue.Pending(),
		Draining:    s.queue.Draining(),
		Concurrency: s.queue.Concurrency(),
		Enabled:     s.cfg.Enabled,
	}
}

// Shutdown stops intake and drains the backlog until ctx ends, then abandons the rest.
func (s *NotificationService) Shutdown(ctx context.Context) (int, error) {
	return s.queue.Shutdown(ctx)
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	task, ok := job.Payload.(models.NotificationTask)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	if err := s.messenger.Send(ctx, task.Destination, task.Message); err != nil {
		return err
	}
	s.metrics.RecordNotification(NotificationSent)
	return nil
}

func (s *NotificationService) onFailure(job jobs.Job, err error) {
	s.metrics.RecordNotification(NotificationFailed)
	s.logger.Warn("guardian notification failed",
		zap.String("student_id", job.Subject),
		zap.String("job_id", job.ID),
		zap.Error(err))
}
