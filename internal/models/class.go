package models

// Classroom represents a homeroom class.
type Classroom struct {
	ID                string  `db:"id" json:"id"`
	Grade             string  `db:"grade" json:"grade"`
	Room              string  `db:"room" json:"room"`
	HomeroomTeacherID *string `db:"homeroom_teacher_id" json:"homeroom_teacher_id,omitempty"`
}

// Label renders the grade/room pair used in messages, e.g. "M.4/2".
func (c Classroom) Label() string {
	if c.Room == "" {
		return c.Grade
	}
	return c.Grade + "/" + c.Room
}
