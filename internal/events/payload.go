package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformed marks input that can never be processed; consumers ack it.
	ErrMalformed = errors.New("events: malformed event")
	// ErrUnknownEvent is returned for names outside the catalog.
	ErrUnknownEvent = errors.New("events: unknown event")
)

// ID is an entity id that decodes from a JSON number or a numeric string.
// Zero or negative means absent; unparsable input decodes to zero.
type ID int64

// UnmarshalJSON accepts 42, 42.0, "42" and null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*id = 0
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*id = ID(v)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		*id = ID(int64(f))
	}
	return nil
}

// Present reports whether the id was supplied. Database ids are positive, so
// zero and negative values count as missing.
func (id ID) Present() bool { return id > 0 }

// Payload is the typed data of one catalog event.
type Payload interface {
	EventName() Name
	Validate() error
}

// ChapterCompletedPayload is published by progress-service.
type ChapterCompletedPayload struct {
	StudentID    ID     `json:"studentId"`
	ChapterID    ID     `json:"chapterId"`
	CourseID     ID     `json:"courseId,omitempty"`
	ChapterTitle string `json:"chapterTitle,omitempty"`
}

func (ChapterCompletedPayload) EventName() Name { return ChapterCompleted }

func (p ChapterCompletedPayload) Validate() error {
	return require(ChapterCompleted, field{"studentId", p.StudentID}, field{"chapterId", p.ChapterID})
}

// HomeworkSubmittedPayload is published by homework-service.
type HomeworkSubmittedPayload struct {
	HomeworkID    ID     `json:"homeworkId"`
	HomeworkTitle string `json:"homeworkTitle,omitempty"`
	SubmissionID  ID     `json:"submissionId,omitempty"`
	StudentID     ID     `json:"studentId"`
	CourseID      ID     `json:"courseId,omitempty"`
	ChapterID     ID     `json:"chapterId,omitempty"`
}

func (HomeworkSubmittedPayload) EventName() Name { return HomeworkSubmitted }

func (p HomeworkSubmittedPayload) Validate() error {
	return require(HomeworkSubmitted, field{"homeworkId", p.HomeworkID}, field{"studentId", p.StudentID})
}

// EnrollmentPayload carries both COURSE_ENROLLED and COURSE_DROPPED.
type EnrollmentPayload struct {
	Event      Name   `json:"-"`
	StudentID  ID     `json:"studentId"`
	CourseID   ID     `json:"courseId,omitempty"`
	CourseName string `json:"courseName,omitempty"`
}

func (p EnrollmentPayload) EventName() Name {
	if p.Event == "" {
		return CourseEnrolled
	}
	return p.Event
}

func (p EnrollmentPayload) Validate() error {
	return require(p.EventName(), field{"studentId", p.StudentID})
}

// AnnouncementPayload is published by user-service. All fields are optional.
type AnnouncementPayload struct {
	AnnouncementID ID     `json:"announcementId,omitempty"`
	Title          string `json:"title,omitempty"`
	Content        string `json:"content,omitempty"`
	TargetAudience string `json:"targetAudience,omitempty"`
}

func (AnnouncementPayload) EventName() Name { return AnnouncementPublished }

func (AnnouncementPayload) Validate() error { return nil }

type field struct {
	name string
	id   ID
}

func require(name Name, fields ...field) error {
	var missing []string
	for _, f := range fields {
		if !f.id.Present() {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s missing %s", ErrMalformed, name, strings.Join(missing, ", "))
	}
	return nil
}

// DecodePayload selects the payload type by name, decodes data into it and
// validates required fields.
func DecodePayload(name Name, data []byte) (Payload, error) {
	var p Payload
	var err error
	switch name {
	case ChapterCompleted:
		var v ChapterCompletedPayload
		err = json.Unmarshal(data, &v)
		p = v
	case HomeworkSubmitted:
		var v HomeworkSubmittedPayload
		err = json.Unmarshal(data, &v)
		p = v
	case CourseEnrolled, CourseDropped:
		v := EnrollmentPayload{Event: name}
		err = json.Unmarshal(data, &v)
		p = v
	case AnnouncementPublished:
		var v AnnouncementPayload
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
