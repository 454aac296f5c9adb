package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/jobs"
	"github.com/noah-isme/sma-attendance-api/pkg/regional"
)

const (
	teacherID      = "teacher-1"
	otherTeacherID = "teacher-9"
	adminID        = "admin-1"
	classroomID    = "class-1"
	otherClassID   = "class-2"
)

var (
	teacherActor      = &models.JWTClaims{UserID: teacherID, Role: models.RoleTeacher}
	otherTeacherActor = &models.JWTClaims{UserID: otherTeacherID, Role: models.RoleTeacher}
	adminActor        = &models.JWTClaims{UserID: adminID, Role: models.RoleAdmin}
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// fixedClock returns a UTC+7 clock pinned to now and a setter to move it.
func fixedClock(now time.Time) (*regional.Clock, func(time.Time)) {
	var current atomic.Value
	current.Store(now)
	clock := regional.New(7 * time.Hour).WithNow(func() time.Time { return current.Load().(time.Time) })
	return clock, func(t time.Time) { current.Store(t) }
}

type fakeStudentRepo struct {
	students map[string]models.StudentDetail
}

func newFakeStudentRepo(students ...models.StudentDetail) *fakeStudentRepo {
	repo := &fakeStudentRepo{students: map[string]models.StudentDetail{}}
	for _, s := range students {
		repo.students[s.ID] = s
	}
	return repo
}

func (r *fakeStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	s, ok := r.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (r *fakeStudentRepo) FindByIDs(ctx context.Context, ids []string) ([]models.StudentDetail, error) {
	var out []models.StudentDetail
	for _, id := range ids {
		if s, ok := r.students[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeClassroomRepo struct {
	classrooms map[string]models.Classroom
	access     map[string][]string
}

func newFakeClassroomRepo() *fakeClassroomRepo {
	return &fakeClassroomRepo{
		classrooms: map[string]models.Classroom{
			classroomID:  {ID: classroomID, Grade: "M.4", Room: "2", HomeroomTeacherID: strPtr(teacherID)},
			otherClassID: {ID: otherClassID, Grade: "M.5", Room: "1"},
		},
		access: map[string][]string{teacherID: {classroomID}},
	}
}

func (r *fakeClassroomRepo) FindByID(ctx context.Context, id string) (*models.Classroom, error) {
	c, ok := r.classrooms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r *fakeClassroomRepo) HasAccess(ctx context.Context, teacher, classroom string) (bool, error) {
	for _, id := range r.access[teacher] {
		if id == classroom {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeClassroomRepo) ListAccessibleIDs(ctx context.Context, teacher string) ([]string, error) {
	return append([]string{}, r.access[teacher]...), nil
}

func slotKey(studentID string, date time.Time, period int) string {
	return fmt.Sprintf("%s|%s|%d", studentID, regional.FormatDay(date), period)
}

// fakeAttendanceStore keys rows like the unique index and applies batches all-or-nothing.
type fakeAttendanceStore struct {
	mu       sync.Mutex
	rows     map[string]models.AttendanceRecord
	failOn   string
	upserts  int
	students *fakeStudentRepo
}

func newFakeAttendanceStore(students *fakeStudentRepo) *fakeAttendanceStore {
	return &fakeAttendanceStore{rows: map[string]models.AttendanceRecord{}, students: students}
}

func (s *fakeAttendanceStore) apply(rows map[string]models.AttendanceRecord, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if s.failOn != "" && record.StudentID == s.failOn {
		return nil, errors.New("violates foreign key constraint")
	}
	now := time.Now().UTC()
	key := slotKey(record.StudentID, record.Date, record.Period)
	if existing, ok := rows[key]; ok {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	} else {
		record.ID = fmt.Sprintf("rec-%d", len(rows)+1)
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	rows[key] = *record
	stored := *record
	return &stored, nil
}

func (s *fakeAttendanceStore) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	return s.apply(s.rows, record)
}

func (s *fakeAttendanceStore) BulkUpsert(ctx context.Context, records []models.AttendanceRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := make(map[string]models.AttendanceRecord, len(s.rows))
	for k, v := range s.rows {
		staged[k] = v
	}
	for i := range records {
		if _, err := s.apply(staged, &records[i]); err != nil {
			return 0, fmt.Errorf("bulk upsert attendance: %w", err)
		}
	}
	s.rows = staged
	return len(records), nil
}

func (s *fakeAttendanceStore) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AttendanceRecordDetail
	for _, row := range s.rows {
		if !row.Date.Equal(filter.Date) {
			continue
		}
		if filter.StudentID != "" && row.StudentID != filter.StudentID {
			continue
		}
		if filter.Period != nil && row.Period != *filter.Period {
			continue
		}
		detail := models.AttendanceRecordDetail{AttendanceRecord: row}
		if s.students != nil {
			if st, ok := s.students.students[row.StudentID]; ok {
				detail.StudentName = st.FullName
				detail.ClassroomID = st.ClassroomID
				detail.ClassroomLabel = st.ClassroomLabel
			}
		}
		if filter.ClassroomID != "" && detail.ClassroomID != filter.ClassroomID {
			continue
		}
		out = append(out, detail)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out, nil
}

func (s *fakeAttendanceStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *fakeAttendanceStore) get(studentID string, date time.Time, period int) (models.AttendanceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[slotKey(studentID, date, period)]
	return row, ok
}

// fakeMessenger records sends and tracks how many are in flight at once.
type fakeMessenger struct {
	mu       sync.Mutex
	sent     []sentMessage
	failFor  map[string]bool
	delay    time.Duration
	inFlight int64
	maxSeen  int64
}

type sentMessage struct {
	to   string
	text string
}

func (m *fakeMessenger) Send(ctx context.Context, to, text string) error {
	n := atomic.AddInt64(&m.inFlight, 1)
	defer atomic.AddInt64(&m.inFlight, -1)
	for {
		seen := atomic.LoadInt64(&m.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt64(&m.maxSeen, seen, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[to] {
		return fmt.Errorf("line push: status 500")
	}
	m.sent = append(m.sent, sentMessage{to: to, text: text})
	return nil
}

func (m *fakeMessenger) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage{}, m.sent...)
}

func (m *fakeMessenger) textsContaining(fragment string) int {
	count := 0
	for _, msg := range m.messages() {
		if strings.Contains(msg.text, fragment) {
			count++
		}
	}
	return count
}

func testQueueConfig() jobs.QueueConfig {
	return jobs.QueueConfig{Concurrency: 3, TaskTimeout: time.Second}
}
