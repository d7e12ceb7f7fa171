package scope_test

import (
	"testing"
	"time"

	"school_platform/backoffice/auth"
	"school_platform/backoffice/schema"
	"school_platform/backoffice/scope"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixtures struct {
	teacherA uuid.UUID
	teacherB uuid.UUID
	parentA  uuid.UUID
	parentB  uuid.UUID

	classA uuid.UUID
	classB uuid.UUID

	// studentsA are children of parentA in classA, studentsB of parentB in
	// classB.
	studentsA []uuid.UUID
	studentsB []uuid.UUID

	lessonA uuid.UUID
	lessonB uuid.UUID
}

func seed(t *testing.T) (*gorm.DB, fixtures) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(schema.AllModels()...))

	f := fixtures{
		teacherA: uuid.New(), teacherB: uuid.New(),
		parentA: uuid.New(), parentB: uuid.New(),
		classA: uuid.New(), classB: uuid.New(),
		lessonA: uuid.New(), lessonB: uuid.New(),
	}

	gradeId := uuid.New()
	subjectId := uuid.New()
	require.NoError(t, db.Create(&schema.Grade{Id: gradeId, Level: 1}).Error)
	require.NoError(t, db.Create(&schema.Subject{Id: subjectId, Name: "Math"}).Error)

	for i, teacher := range []uuid.UUID{f.teacherA, f.teacherB} {
		require.NoError(t, db.Create(&schema.Teacher{
			Id: teacher, Username: "teacher" + string(rune('a'+i)),
			Name: "T", Surname: "S", Address: "addr", Sex: schema.SexFemale,
		}).Error)
	}
	for i, parent := range []uuid.UUID{f.parentA, f.parentB} {
		require.NoError(t, db.Create(&schema.Parent{
			Id: parent, Username: "parent" + string(rune('a'+i)),
			Name: "P", Surname: "S", Phone: "012345678" + string(rune('0'+i)), Address: "addr",
		}).Error)
	}

	require.NoError(t, db.Create(&schema.Class{Id: f.classA, Name: "1A", Capacity: 10, GradeId: gradeId}).Error)
	require.NoError(t, db.Create(&schema.Class{Id: f.classB, Name: "1B", Capacity: 10, GradeId: gradeId}).Error)

	makeStudent := func(name string, classId, parentId uuid.UUID) uuid.UUID {
		id := uuid.New()
		require.NoError(t, db.Create(&schema.Student{
			Id: id, Username: name, Name: name, Surname: "Doe", Address: "addr",
			Sex: schema.SexMale, GradeId: gradeId, ClassId: classId, ParentId: parentId,
		}).Error)
		return id
	}

	f.studentsA = []uuid.UUID{
		makeStudent("amy", f.classA, f.parentA),
		makeStudent("adam", f.classA, f.parentA),
	}
	f.studentsB = []uuid.UUID{
		makeStudent("beth", f.classB, f.parentB),
		makeStudent("ben", f.classB, f.parentB),
		makeStudent("bill", f.classB, f.parentB),
	}

	require.NoError(t, db.Create(&schema.Lesson{
		Id: f.lessonA, Name: "Math A", SubjectId: subjectId, ClassId: f.classA, TeacherId: f.teacherA,
		StartTime: time.Now(), EndTime: time.Now().Add(time.Hour),
	}).Error)
	require.NoError(t, db.Create(&schema.Lesson{
		Id: f.lessonB, Name: "Math B", SubjectId: subjectId, ClassId: f.classB, TeacherId: f.teacherB,
		StartTime: time.Now(), EndTime: time.Now().Add(time.Hour),
	}).Error)

	for _, student := range f.studentsA {
		require.NoError(t, db.Create(&schema.Attendance{
			Id: uuid.New(), Date: time.Now(), Present: true, StudentId: student, LessonId: f.lessonA,
		}).Error)
	}
	for _, student := range f.studentsB {
		require.NoError(t, db.Create(&schema.Attendance{
			Id: uuid.New(), Date: time.Now(), Present: false, StudentId: student, LessonId: f.lessonB,
		}).Error)
	}

	return db, f
}

func listStudents(t *testing.T, db *gorm.DB, caller auth.Caller, filters scope.Filters) []schema.Student {
	rowScope, err := scope.Students(caller, filters)
	require.NoError(t, err)

	var students []schema.Student
	require.NoError(t, db.Model(&schema.Student{}).Scopes(rowScope).Find(&students).Error)
	return students
}

func TestStudentScopePerRole(t *testing.T) {
	db, f := seed(t)

	admin := auth.Caller{Id: uuid.New(), Role: schema.RoleAdmin}
	assert.Len(t, listStudents(t, db, admin, scope.Filters{}), 5)

	parent := auth.Caller{Id: f.parentA, Role: schema.RoleParent}
	students := listStudents(t, db, parent, scope.Filters{})
	require.Len(t, students, 2)
	for _, student := range students {
		assert.Equal(t, f.parentA, student.ParentId)
	}

	student := auth.Caller{Id: f.studentsB[0], Role: schema.RoleStudent}
	self := listStudents(t, db, student, scope.Filters{})
	require.Len(t, self, 1)
	assert.Equal(t, f.studentsB[0], self[0].Id)

	teacher := auth.Caller{Id: f.teacherA, Role: schema.RoleTeacher}
	assert.Len(t, listStudents(t, db, teacher, scope.Filters{}), 2, "teacher A only teaches class A")
}

func TestUnknownRoleFailsClosed(t *testing.T) {
	db, _ := seed(t)

	caller := auth.Caller{Id: uuid.New(), Role: "intruder"}
	rowScope, err := scope.Students(caller, scope.Filters{})
	assert.ErrorIs(t, err, scope.ErrUnauthorizedScope)

	// Applying the returned scope anyway must match nothing.
	var students []schema.Student
	require.NoError(t, db.Model(&schema.Student{}).Scopes(rowScope).Find(&students).Error)
	assert.Empty(t, students)
}

func TestMissingCallerIdFailsClosed(t *testing.T) {
	db, _ := seed(t)

	for _, role := range []string{schema.RoleTeacher, schema.RoleStudent, schema.RoleParent} {
		caller := auth.Caller{Role: role}

		rowScope, err := scope.Attendance(caller, scope.Filters{})
		assert.ErrorIs(t, err, scope.ErrUnauthorizedScope, role)

		var rows []schema.Attendance
		require.NoError(t, db.Model(&schema.Attendance{}).Scopes(rowScope).Find(&rows).Error)
		assert.Empty(t, rows, role)

		rowScope, err = scope.Students(caller, scope.Filters{})
		assert.ErrorIs(t, err, scope.ErrUnauthorizedScope, role)

		var students []schema.Student
		require.NoError(t, db.Model(&schema.Student{}).Scopes(rowScope).Find(&students).Error)
		assert.Empty(t, students, role)
	}

	// An admin is unrestricted, so no id is needed.
	rowScope, err := scope.Students(auth.Caller{Role: schema.RoleAdmin}, scope.Filters{})
	require.NoError(t, err)
	var students []schema.Student
	require.NoError(t, db.Model(&schema.Student{}).Scopes(rowScope).Find(&students).Error)
	assert.Len(t, students, 5)
}

func TestFiltersIntersectWithRoleScope(t *testing.T) {
	db, f := seed(t)

	// A parent filtering by another family's class sees nothing.
	parent := auth.Caller{Id: f.parentA, Role: schema.RoleParent}
	assert.Empty(t, listStudents(t, db, parent, scope.Filters{ClassId: &f.classB}))

	// Search narrows within the role scope, not beyond it.
	matched := listStudents(t, db, parent, scope.Filters{Search: "my"})
	require.Len(t, matched, 1)
	assert.Equal(t, "amy", matched[0].Name)

	admin := auth.Caller{Id: uuid.New(), Role: schema.RoleAdmin}
	assert.Len(t, listStudents(t, db, admin, scope.Filters{ClassId: &f.classB}), 3)
}

func TestAttendanceScope(t *testing.T) {
	db, f := seed(t)

	count := func(caller auth.Caller, filters scope.Filters) int {
		rowScope, err := scope.Attendance(caller, filters)
		require.NoError(t, err)
		var rows []schema.Attendance
		require.NoError(t, db.Model(&schema.Attendance{}).Scopes(rowScope).Find(&rows).Error)
		return len(rows)
	}

	assert.Equal(t, 5, count(auth.Caller{Id: uuid.New(), Role: schema.RoleAdmin}, scope.Filters{}))
	assert.Equal(t, 2, count(auth.Caller{Id: f.teacherA, Role: schema.RoleTeacher}, scope.Filters{}))
	assert.Equal(t, 1, count(auth.Caller{Id: f.studentsA[0], Role: schema.RoleStudent}, scope.Filters{}))
	assert.Equal(t, 3, count(auth.Caller{Id: f.parentB, Role: schema.RoleParent}, scope.Filters{}))

	// A student filter outside the caller's visibility yields nothing.
	assert.Equal(t, 0, count(
		auth.Caller{Id: f.teacherA, Role: schema.RoleTeacher},
		scope.Filters{StudentId: &f.studentsB[0]},
	))
}

func TestLessonScope(t *testing.T) {
	db, f := seed(t)

	count := func(caller auth.Caller) int {
		rowScope, err := scope.Lessons(caller, scope.Filters{})
		require.NoError(t, err)
		var rows []schema.Lesson
		require.NoError(t, db.Model(&schema.Lesson{}).Scopes(rowScope).Find(&rows).Error)
		return len(rows)
	}

	assert.Equal(t, 2, count(auth.Caller{Id: uuid.New(), Role: schema.RoleAdmin}))
	assert.Equal(t, 1, count(auth.Caller{Id: f.teacherB, Role: schema.RoleTeacher}))
	assert.Equal(t, 1, count(auth.Caller{Id: f.studentsA[0], Role: schema.RoleStudent}))
	assert.Equal(t, 1, count(auth.Caller{Id: f.parentA, Role: schema.RoleParent}))
}

func TestClassBoundScopeIncludesSchoolWideRows(t *testing.T) {
	db, f := seed(t)

	schoolWide := schema.Announcement{Id: uuid.New(), Title: "All hands", Description: "d", Date: time.Now()}
	classOnly := schema.Announcement{Id: uuid.New(), Title: "Class A trip", Description: "d", Date: time.Now(), ClassId: &f.classA}
	require.NoError(t, db.Create(&schoolWide).Error)
	require.NoError(t, db.Create(&classOnly).Error)

	list := func(caller auth.Caller) []schema.Announcement {
		rowScope, err := scope.Announcements(caller, scope.Filters{})
		require.NoError(t, err)
		var rows []schema.Announcement
		require.NoError(t, db.Model(&schema.Announcement{}).Scopes(rowScope).Find(&rows).Error)
		return rows
	}

	assert.Len(t, list(auth.Caller{Id: f.studentsA[0], Role: schema.RoleStudent}), 2)

	// Class B students only see the school-wide announcement.
	rows := list(auth.Caller{Id: f.studentsB[0], Role: schema.RoleStudent})
	require.Len(t, rows, 1)
	assert.Equal(t, "All hands", rows[0].Title)
}
