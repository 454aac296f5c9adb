package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/jobs"
)

func notificationEvent(id string, status models.AttendanceStatus, period int, address *string) models.AttendanceEvent {
	return models.AttendanceEvent{
		Student:    guardianStudent(id, "Student "+id, classroomID, "M.4/2", address),
		Status:     status,
		Period:     period,
		Date:       time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		RecordedAt: time.Date(2025, 1, 15, 1, 30, 0, 0, time.UTC),
	}
}

func newTestNotifier(m *fakeMessenger, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	clock, _ := fixedClock(time.Date(2025, 1, 15, 1, 30, 0, 0, time.UTC))
	return NewNotificationService(m, clock, NewMetricsService(), logger, cfg)
}

func shutdown(t *testing.T, svc *NotificationService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := svc.Shutdown(ctx)
	require.NoError(t, err)
}

func TestNotificationRenderTemplates(t *testing.T) {
	svc := newTestNotifier(&fakeMessenger{}, nil, NotificationConfig{Enabled: true, SchoolName: "Wat Suthi School"})
	defer shutdown(t, svc)

	assembly := svc.Render(notificationEvent("s1", models.AttendanceStatusLate, 0, nil))
	assert.Equal(t, "[Wat Suthi School] Student s1 (M.4/2) arrived late to the morning assembly on 2025-01-15 at 08:30.", assembly)

	absent := svc.Render(notificationEvent("s1", models.AttendanceStatusAbsent, 0, nil))
	assert.Contains(t, absent, "absent from the morning assembly")

	period := svc.Render(notificationEvent("s1", models.AttendanceStatusAbsent, 3, nil))
	assert.Contains(t, period, "absent for period 3")
	assert.NotContains(t, period, "assembly")

	late := svc.Render(notificationEvent("s1", models.AttendanceStatusLate, 7, nil))
	assert.Contains(t, late, "late for period 7")
}

func TestNotificationGating(t *testing.T) {
	m := &fakeMessenger{}
	svc := newTestNotifier(m, nil, NotificationConfig{Enabled: true, Queue: testQueueConfig()})

	address := "notify-token"
	require.NoError(t, svc.NotifyMany(context.Background(), []models.AttendanceEvent{
		notificationEvent("s1", models.AttendanceStatusPresent, 1, &address),
		notificationEvent("s2", models.AttendanceStatusLeave, 1, &address),
		notificationEvent("s3", models.AttendanceStatusLate, 1, nil),
		notificationEvent("s4", models.AttendanceStatusAbsent, 1, strPtr("")),
		notificationEvent("s5", models.AttendanceStatusAbsent, 1, &address),
	}))
	shutdown(t, svc)

	sent := m.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].text, "Student s5")
}

func TestNotificationDisabled(t *testing.T) {
	m := &fakeMessenger{}
	svc := newTestNotifier(m, nil, NotificationConfig{Enabled: false, Queue: testQueueConfig()})

	require.NoError(t, svc.Notify(context.Background(), notificationEvent("s1", models.AttendanceStatusAbsent, 1, strPtr("token"))))
	shutdown(t, svc)
	assert.Empty(t, m.messages())
	assert.False(t, svc.Status().Enabled)
}

func TestNotificationConcurrencyBound(t *testing.T) {
	m := &fakeMessenger{delay: 5 * time.Millisecond}
	svc := newTestNotifier(m, nil, NotificationConfig{Enabled: true, Queue: jobs.QueueConfig{Concurrency: 3}})

	events := make([]models.AttendanceEvent, 0, 14)
	for i := 0; i < 14; i++ {
		events = append(events, notificationEvent(fmt.Sprintf("s%d", i), models.AttendanceStatusLate, 1, strPtr(fmt.Sprintf("token-%d", i))))
	}
	require.NoError(t, svc.NotifyMany(context.Background(), events))
	shutdown(t, svc)

	assert.Len(t, m.messages(), 14)
	assert.LessOrEqual(t, m.maxSeen, int64(3))
	assert.Equal(t, 0, svc.Status().Pending)
}

func TestNotificationFailuresAreIsolatedAndLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := &fakeMessenger{failFor: map[string]bool{"token-bad": true}}
	svc := newTestNotifier(m, zap.New(core), NotificationConfig{Enabled: true, Queue: jobs.QueueConfig{Concurrency: 2}})

	require.NoError(t, svc.NotifyMany(context.Background(), []models.AttendanceEvent{
		notificationEvent("s1", models.AttendanceStatusLate, 1, strPtr("token-1")),
		notificationEvent("s2", models.AttendanceStatusLate, 1, strPtr("token-bad")),
		notificationEvent("s3", models.AttendanceStatusLate, 1, strPtr("token-3")),
	}))
	shutdown(t, svc)

	assert.Len(t, m.messages(), 2)
	failures := logs.FilterMessage("guardian notification failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, "s2", failures[0].ContextMap()["student_id"])
}

func TestNotificationStatus(t *testing.T) {
	release := make(chan struct{})
	m := &blockingMessenger{release: release}
	svc := NewNotificationService(m, nil, nil, nil, NotificationConfig{Enabled: true, Queue: jobs.QueueConfig{Concurrency: 2}})

	events := make([]models.AttendanceEvent, 0, 5)
	for i := 0; i < 5; i++ {
		events = append(events, notificationEvent(fmt.Sprintf("s%d", i), models.AttendanceStatusAbsent, 2, strPtr("token")))
	}
	require.NoError(t, svc.NotifyMany(context.Background(), events))

	require.Eventually(t, func() bool { return svc.Status().Pending == 3 }, time.Second, time.Millisecond)
	status := svc.Status()
	assert.True(t, status.Draining)
	assert.Equal(t, 2, status.Concurrency)

	close(release)
	shutdown(t, svc)
	assert.False(t, svc.Status().Draining)
}

type blockingMessenger struct {
	release chan struct{}
}

func (b *blockingMessenger) Send(ctx context.Context, to, text string) error {
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
