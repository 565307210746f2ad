// Package listeners holds the typed event handlers of each service and the
// tables that bind them to the dispatch container.
package listeners

import (
	"context"
	"fmt"
	"time"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/dispatch"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/session"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/store"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

// Unlocker opens the homeworks gated on a chapter.
type Unlocker interface {
	UnlockChapter(ctx context.Context, studentID, chapterID int64) (int, error)
}

// Notifier stores and pushes a user notification. *notify.Service satisfies it.
type Notifier interface {
	Send(ctx context.Context, userID int64, title, content string, kind store.NotificationKind, relatedID int64) (*store.Notification, error)
}

// TeacherLookup resolves a course's teacher. *peer.CourseClient satisfies it.
type TeacherLookup interface {
	TeacherOf(ctx context.Context, courseID int64) (int64, error)
}

// Broadcaster pushes a message to every live session.
type Broadcaster interface {
	Broadcast(msg any) int
}

// Deps are the collaborators of the handlers. A service only needs the ones
// its own routes use.
type Deps struct {
	Unlocker Unlocker
	Notifier Notifier
	Courses  TeacherLookup
	Sessions Broadcaster

	// FallbackTeacher receives homework notifications when the course
	// lookup fails. Zero skips the notification.
	FallbackTeacher int64

	Logger logpkg.Logger
}

// Listeners implements the handlers.
type Listeners struct {
	d      Deps
	logger logpkg.Logger
}

// New returns the handler set.
func New(d Deps) *Listeners {
	logger := d.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Listeners{d: d, logger: logger.With(logpkg.Component("listeners"))}
}

// Table returns the event routes of service. Services without listeners get
// an empty table.
func (l *Listeners) Table(service string) []dispatch.Route {
	switch service {
	case events.ServiceHomework:
		return []dispatch.Route{
			{Event: events.ChapterCompleted, Handler: dispatch.Typed(l.ChapterCompleted)},
		}
	case events.ServiceUser:
		return []dispatch.Route{
			{Event: events.HomeworkSubmitted, Handler: dispatch.Typed(l.HomeworkSubmitted)},
			{Event: events.CourseEnrolled, Handler: dispatch.Typed(l.Enrollment)},
			{Event: events.CourseDropped, Handler: dispatch.Typed(l.Enrollment)},
			{Event: events.AnnouncementPublished, Handler: dispatch.Typed(l.AnnouncementPublished)},
		}
	}
	return nil
}

// ChapterCompleted unlocks the chapter's homeworks for the student. Replays
// are harmless: already unlocked rows are left alone.
func (l *Listeners) ChapterCompleted(ctx context.Context, env events.Envelope, p events.ChapterCompletedPayload) error {
	n, err := l.d.Unlocker.UnlockChapter(ctx, int64(p.StudentID), int64(p.ChapterID))
	if err != nil {
		return fmt.Errorf("unlock chapter %d for student %d: %w", p.ChapterID, p.StudentID, err)
	}
	l.logger.Info("chapter homeworks unlocked",
		logpkg.Str("event_id", env.ID),
		logpkg.Int64("student_id", int64(p.StudentID)),
		logpkg.Int64("chapter_id", int64(p.ChapterID)),
		logpkg.Int("unlocked", n))
	return nil
}

// HomeworkSubmitted tells the course teacher about a new submission.
func (l *Listeners) HomeworkSubmitted(ctx context.Context, env events.Envelope, p events.HomeworkSubmittedPayload) error {
	teacher := l.teacherOf(ctx, int64(p.CourseID))
	if teacher == 0 {
		l.logger.Warn("no teacher for submission, notification skipped",
			logpkg.Str("event_id", env.ID), logpkg.Int64("course_id", int64(p.CourseID)))
		return nil
	}
	content := fmt.Sprintf("学生(ID:%d)提交了作业「%s」，请及时批改。", p.StudentID, p.HomeworkTitle)
	if _, err := l.d.Notifier.Send(ctx, teacher, "学生提交了作业", content, store.KindHomework, int64(p.HomeworkID)); err != nil {
		return err
	}
	l.logger.Info("teacher notified of submission",
		logpkg.Int64("homework_id", int64(p.HomeworkID)), logpkg.Int64("teacher_id", teacher))
	return nil
}

func (l *Listeners) teacherOf(ctx context.Context, courseID int64) int64 {
	if courseID != 0 && l.d.Courses != nil {
		t, err := l.d.Courses.TeacherOf(ctx, courseID)
		if err == nil && t != 0 {
			return t
		}
		if err != nil {
			l.logger.Warn("course lookup failed, using fallback teacher",
				logpkg.Int64("course_id", courseID), logpkg.Err(err))
		}
	}
	return l.d.FallbackTeacher
}

// Enrollment confirms an enrollment or a drop to the student.
func (l *Listeners) Enrollment(ctx context.Context, env events.Envelope, p events.EnrollmentPayload) error {
	name := p.CourseName
	if name == "" {
		name = fmt.Sprintf("课程#%d", p.CourseID)
	}
	title, content := "选课成功", fmt.Sprintf("您已成功报名课程「%s」，开始学习之旅吧！", name)
	if p.EventName() == events.CourseDropped {
		title, content = "退课确认", fmt.Sprintf("您已退出课程「%s」的学习。", name)
	}
	if _, err := l.d.Notifier.Send(ctx, int64(p.StudentID), title, content, store.KindCourse, int64(p.CourseID)); err != nil {
		return err
	}
	l.logger.Info("enrollment notification sent",
		logpkg.Str("event", string(p.EventName())), logpkg.Int64("student_id", int64(p.StudentID)))
	return nil
}

// AnnouncementPublished pushes the announcement to every live session. The
// target audience is not filtered on.
func (l *Listeners) AnnouncementPublished(_ context.Context, env events.Envelope, p events.AnnouncementPayload) error {
	title := p.Title
	if title == "" {
		title = "新公告"
	}
	msg := map[string]any{
		"type":           session.TypeAnnouncement,
		"announcementId": int64(p.AnnouncementID),
		"title":          title,
		"content":        p.Content,
		"timestamp":      time.Now().UnixMilli(),
	}
	n := 0
	if l.d.Sessions != nil {
		n = l.d.Sessions.Broadcast(msg)
	}
	l.logger.Info("announcement broadcast",
		logpkg.Int64("announcement_id", int64(p.AnnouncementID)), logpkg.Int("sessions", n))
	return nil
}
