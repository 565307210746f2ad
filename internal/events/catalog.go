package events

import (
	"sort"
	"strconv"
)

const (
	// StreamPrefix prefixes every platform stream key.
	StreamPrefix = "stream:edu:"
	// GroupPrefix prefixes every reader group name.
	GroupPrefix = "group:"

	// PlaceholderField marks the record appended to create an empty stream.
	PlaceholderField = "_init"
)

// Service names.
const (
	ServiceUser     = "user-service"
	ServiceCourse   = "course-service"
	ServiceHomework = "homework-service"
	ServiceProgress = "progress-service"
)

// Name is a logical event name as carried in the wire "type" field.
type Name string

const (
	HomeworkSubmitted     Name = "HOMEWORK_SUBMITTED"
	AnnouncementPublished Name = "ANNOUNCEMENT_PUBLISHED"
	ChapterCompleted      Name = "CHAPTER_COMPLETED"
	CourseEnrolled        Name = "COURSE_ENROLLED"
	CourseDropped         Name = "COURSE_DROPPED"
)

// Descriptor is one catalog entry.
type Descriptor struct {
	Name        Name     `json:"name"`
	Suffix      string   `json:"suffix"`
	Description string   `json:"description"`
	Producers   []string `json:"producers"`
	Consumers   []string `json:"consumers"`
}

// StreamKey returns the full stream key of the event.
func (d Descriptor) StreamKey() string { return StreamPrefix + d.Suffix }

var catalog = map[Name]Descriptor{
	HomeworkSubmitted: {
		Name: HomeworkSubmitted, Suffix: "homework-submitted", Description: "student submitted homework",
		Producers: []string{ServiceHomework}, Consumers: []string{ServiceUser},
	},
	AnnouncementPublished: {
		Name: AnnouncementPublished, Suffix: "announcement-published", Description: "announcement published",
		Producers: []string{ServiceUser}, Consumers: []string{ServiceUser},
	},
	ChapterCompleted: {
		Name: ChapterCompleted, Suffix: "chapter-completed", Description: "student completed a chapter",
		Producers: []string{ServiceProgress}, Consumers: []string{ServiceHomework, ServiceProgress},
	},
	CourseEnrolled: {
		Name: CourseEnrolled, Suffix: "course-enrolled", Description: "student enrolled in a course",
		Producers: []string{ServiceCourse}, Consumers: []string{ServiceUser},
	},
	CourseDropped: {
		Name: CourseDropped, Suffix: "course-dropped", Description: "student dropped a course",
		Producers: []string{ServiceCourse}, Consumers: []string{ServiceUser},
	},
}

// Lookup returns the catalog entry for name.
func Lookup(name Name) (Descriptor, bool) {
	d, ok := catalog[name]
	return d, ok
}

// StreamKeyFor maps a logical name to its stream key; unknown names map to "".
func StreamKeyFor(name Name) string {
	d, ok := catalog[name]
	if !ok {
		return ""
	}
	return d.StreamKey()
}

// All returns the catalog sorted by name.
func All() []Descriptor {
	out := make([]Descriptor, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GroupName returns the reader group of a consuming service.
func GroupName(service string) string { return GroupPrefix + service }

// ConsumerName returns the consumer identity of one service instance.
func ConsumerName(service string, instance int) string {
	return service + ":" + strconv.Itoa(instance)
}
