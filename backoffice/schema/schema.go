package schema

import (
	"time"

	"github.com/google/uuid"
)

// Role values stored on directory identities and resolved per request.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleParent  = "parent"
)

const (
	SexMale   = "MALE"
	SexFemale = "FEMALE"
)

type Admin struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte
}

// Teacher, Student and Parent rows use the directory-issued identity id as
// their primary key. They are only ever written through sync.Synchronizer.
type Teacher struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string  `gorm:"unique;size:50;not null"`
	Name     string  `gorm:"size:100;not null"`
	Surname  string  `gorm:"size:100;not null"`
	Email    *string `gorm:"unique;size:254"`
	Phone    *string `gorm:"unique;size:20"`
	Address  string  `gorm:"size:254;not null"`
	Img      *string
	BloodType string `gorm:"size:10"`
	Sex       string `gorm:"size:10;not null"`
	Birthday  time.Time

	Subjects []Subject `gorm:"many2many:subject_teachers;"`
	Lessons  []Lesson
	Classes  []Class `gorm:"foreignKey:SupervisorId"`
}

type Student struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string  `gorm:"unique;size:50;not null"`
	Name     string  `gorm:"size:100;not null"`
	Surname  string  `gorm:"size:100;not null"`
	Email    *string `gorm:"unique;size:254"`
	Phone    *string `gorm:"unique;size:20"`
	Address  string  `gorm:"size:254;not null"`
	Img      *string
	BloodType string `gorm:"size:10"`
	Sex       string `gorm:"size:10;not null"`
	Birthday  time.Time

	GradeId uuid.UUID `gorm:"type:uuid;not null"`
	Grade   *Grade

	ClassId uuid.UUID `gorm:"type:uuid;not null"`
	Class   *Class

	ParentId uuid.UUID `gorm:"type:uuid;not null"`
	Parent   *Parent

	Attendances []Attendance `gorm:"constraint:OnDelete:CASCADE"`
	Results     []Result     `gorm:"constraint:OnDelete:CASCADE"`
}

type Parent struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string  `gorm:"unique;size:50;not null"`
	Name     string  `gorm:"size:100;not null"`
	Surname  string  `gorm:"size:100;not null"`
	Email    *string `gorm:"unique;size:254"`
	Phone    string  `gorm:"unique;size:20;not null"`
	Address  string  `gorm:"size:254;not null"`

	Students []Student
}

type Grade struct {
	Id    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Level int       `gorm:"unique;not null"`
}

type Class struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name     string `gorm:"unique;size:100;not null"`
	Capacity int    `gorm:"not null"`

	SupervisorId *uuid.UUID `gorm:"type:uuid"`
	Supervisor   *Teacher   `gorm:"foreignKey:SupervisorId;constraint:OnDelete:SET NULL"`

	GradeId uuid.UUID `gorm:"type:uuid;not null"`
	Grade   *Grade

	Students      []Student
	Lessons       []Lesson
	Events        []Event        `gorm:"constraint:OnDelete:SET NULL"`
	Announcements []Announcement `gorm:"constraint:OnDelete:SET NULL"`
}

type Subject struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name string `gorm:"unique;size:100;not null"`

	Teachers []Teacher `gorm:"many2many:subject_teachers;"`
	Lessons  []Lesson
}

type Lesson struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name      string    `gorm:"size:100;not null"`
	StartTime time.Time `gorm:"not null"`
	EndTime   time.Time `gorm:"not null"`

	SubjectId uuid.UUID `gorm:"type:uuid;not null"`
	Subject   *Subject

	ClassId uuid.UUID `gorm:"type:uuid;not null"`
	Class   *Class

	TeacherId uuid.UUID `gorm:"type:uuid;not null"`
	Teacher   *Teacher

	Exams       []Exam       `gorm:"constraint:OnDelete:CASCADE"`
	Assignments []Assignment `gorm:"constraint:OnDelete:CASCADE"`
	Attendances []Attendance `gorm:"constraint:OnDelete:CASCADE"`
}

type Exam struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title     string    `gorm:"size:100;not null"`
	StartTime time.Time `gorm:"not null"`
	EndTime   time.Time `gorm:"not null"`

	LessonId uuid.UUID `gorm:"type:uuid;not null"`
	Lesson   *Lesson

	Results []Result `gorm:"constraint:OnDelete:CASCADE"`
}

type Assignment struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title     string    `gorm:"size:100;not null"`
	StartDate time.Time `gorm:"not null"`
	DueDate   time.Time `gorm:"not null"`

	LessonId uuid.UUID `gorm:"type:uuid;not null"`
	Lesson   *Lesson

	Results []Result `gorm:"constraint:OnDelete:CASCADE"`
}

// Exactly one of ExamId or AssignmentId is set.
type Result struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Score int `gorm:"not null"`

	ExamId *uuid.UUID `gorm:"type:uuid"`
	Exam   *Exam

	AssignmentId *uuid.UUID `gorm:"type:uuid"`
	Assignment   *Assignment

	StudentId uuid.UUID `gorm:"type:uuid;not null"`
	Student   *Student
}

type Attendance struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Date    time.Time `gorm:"not null"`
	Present bool      `gorm:"not null"`

	StudentId uuid.UUID `gorm:"type:uuid;not null"`
	Student   *Student

	LessonId uuid.UUID `gorm:"type:uuid;not null"`
	Lesson   *Lesson
}

type Announcement struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title       string    `gorm:"size:100;not null"`
	Description string    `gorm:"not null"`
	Date        time.Time `gorm:"not null"`

	ClassId *uuid.UUID `gorm:"type:uuid"`
	Class   *Class
}

type Event struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title       string `gorm:"size:100;not null"`
	Description string
	StartTime   time.Time `gorm:"not null"`
	EndTime     time.Time `gorm:"not null"`

	ClassId *uuid.UUID `gorm:"type:uuid"`
	Class   *Class
}

// Credential is the identity record of the local directory used when no
// Keycloak server is configured. It stands in for the external identity
// store and is never joined against the person tables.
type Credential struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	Password []byte `gorm:"not null"`
	Role     string `gorm:"size:20;not null"`
}

func AllModels() []interface{} {
	return []interface{}{
		&Admin{}, &Teacher{}, &Student{}, &Parent{},
		&Grade{}, &Class{}, &Subject{}, &Lesson{},
		&Exam{}, &Assignment{}, &Result{}, &Attendance{},
		&Announcement{}, &Event{}, &Credential{},
	}
}
