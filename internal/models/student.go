package models

// Student represents a learner. Its ID is the owning user's ID.
type Student struct {
	ID              string  `db:"id" json:"id"`
	StudentNumber   string  `db:"student_number" json:"student_number"`
	FullName        string  `db:"full_name" json:"full_name"`
	ClassroomID     string  `db:"classroom_id" json:"classroom_id"`
	GuardianAddress *string `db:"guardian_address" json:"-"`
	Active          bool    `db:"active" json:"active"`
}

// StudentDetail adds classroom display fields.
type StudentDetail struct {
	Student
	ClassroomLabel string `db:"classroom_label" json:"classroom_label"`
}

// HasGuardian reports whether a guardian destination is registered.
func (s Student) HasGuardian() bool {
	return s.GuardianAddress != nil && *s.GuardianAddress != ""
}
