package safeguarding

import "time"

// RawRecord is the per-student domain data supplied by the record source.
// It is trusted-side only and never crosses the provider boundary.
type RawRecord struct {
	BehavioralIncidents []BehavioralIncident `json:"behavioral_incidents"`
	Assessments         []Assessment         `json:"assessments"`
	Communications      []Communication      `json:"communications"`
	Attendance          []AttendanceRecord   `json:"attendance"`
}

// Empty reports whether the record carries no events in any domain.
func (r RawRecord) Empty() bool {
	return len(r.BehavioralIncidents) == 0 && len(r.Assessments) == 0 &&
		len(r.Communications) == 0 && len(r.Attendance) == 0
}

type BehavioralIncident struct {
	Timestamp    time.Time `json:"timestamp"`
	IncidentType string    `json:"incident_type"`
	Description  string    `json:"description,omitempty"`
	ReportedBy   string    `json:"reported_by,omitempty"`
}

type Assessment struct {
	Timestamp       time.Time `json:"timestamp"`
	Subject         string    `json:"subject"`
	Score           float64   `json:"score"`
	BelowGradeLevel bool      `json:"below_grade_level"`
}

// Priority of a communication.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Concerning reports whether the priority counts toward escalation.
func (p Priority) Concerning() bool {
	return p == PriorityUrgent || p == PriorityHigh
}

type Communication struct {
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
	Priority  Priority  `json:"priority"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body,omitempty"`
}

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

type AttendanceRecord struct {
	Timestamp time.Time        `json:"timestamp"`
	Status    AttendanceStatus `json:"status"`
}

// Present counts late arrivals as present.
func (a AttendanceRecord) Present() bool {
	return a.Status == AttendancePresent || a.Status == AttendanceLate
}

// StudentProfile is trusted-side context used only when rendering reports.
type StudentProfile struct {
	StudentID  string `json:"student_id"`
	Name       string `json:"name"`
	GradeLevel string `json:"grade_level,omitempty"`
	ClassGroup string `json:"class_group,omitempty"`
	Teacher    string `json:"teacher,omitempty"`
}
