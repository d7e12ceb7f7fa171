package sync_test

import (
	"context"
	"errors"
	"testing"

	"school_platform/backoffice/auth"
	"school_platform/backoffice/metrics"
	"school_platform/backoffice/schema"
	"school_platform/backoffice/sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeDirectory records every directory call so tests can verify the
// dual-write ordering and compensation behavior.
type fakeDirectory struct {
	createErr error
	updateErr error
	deleteErr error

	created map[uuid.UUID]auth.Identity
	updated map[uuid.UUID]auth.IdentityUpdate
	deleted []uuid.UUID
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		created: map[uuid.UUID]auth.Identity{},
		updated: map[uuid.UUID]auth.IdentityUpdate{},
	}
}

func (d *fakeDirectory) CreateUser(ctx context.Context, identity auth.Identity) (uuid.UUID, error) {
	if d.createErr != nil {
		return uuid.Nil, d.createErr
	}
	for _, existing := range d.created {
		if existing.Username == identity.Username {
			return uuid.Nil, auth.ErrIdentifierTaken
		}
	}
	id := uuid.New()
	d.created[id] = identity
	return id, nil
}

func (d *fakeDirectory) UpdateUser(ctx context.Context, id uuid.UUID, update auth.IdentityUpdate) error {
	if d.updateErr != nil {
		return d.updateErr
	}
	if _, ok := d.created[id]; !ok {
		return auth.ErrIdentityNotFound
	}
	d.updated[id] = update
	return nil
}

func (d *fakeDirectory) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if d.deleteErr != nil {
		return d.deleteErr
	}
	d.deleted = append(d.deleted, id)
	if _, ok := d.created[id]; !ok {
		return auth.ErrIdentityNotFound
	}
	delete(d.created, id)
	return nil
}

type fixture struct {
	gradeId   uuid.UUID
	classId   uuid.UUID
	parentId  uuid.UUID
	subjectId uuid.UUID
}

func setupDb(t *testing.T) (*gorm.DB, fixture) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(schema.AllModels()...))

	f := fixture{
		gradeId:   uuid.New(),
		classId:   uuid.New(),
		parentId:  uuid.New(),
		subjectId: uuid.New(),
	}

	require.NoError(t, db.Create(&schema.Grade{Id: f.gradeId, Level: 1}).Error)
	require.NoError(t, db.Create(&schema.Class{Id: f.classId, Name: "1A", Capacity: 2, GradeId: f.gradeId}).Error)
	require.NoError(t, db.Create(&schema.Parent{
		Id: f.parentId, Username: "parent1", Name: "Pat", Surname: "Doe",
		Phone: "0123456789", Address: "1 Main St",
	}).Error)
	require.NoError(t, db.Create(&schema.Subject{Id: f.subjectId, Name: "Math"}).Error)

	return db, f
}

func teacherFields(username string, subjects ...uuid.UUID) sync.TeacherFields {
	return sync.TeacherFields{
		PersonFields: sync.PersonFields{
			Username: username,
			Password: "password123",
			Name:     "Alice",
			Surname:  "Smith",
			Phone:    "0123456780",
			Address:  "2 Main St",
			Sex:      schema.SexFemale,
			Birthday: "1990-05-01",
		},
		SubjectIds: subjects,
	}
}

func studentFields(username string, f fixture) sync.StudentFields {
	return sync.StudentFields{
		PersonFields: sync.PersonFields{
			Username: username,
			Password: "password123",
			Name:     "Bob",
			Surname:  "Jones",
			Address:  "3 Main St",
			Sex:      schema.SexMale,
			Birthday: "2012-09-01",
		},
		GradeId:  f.gradeId,
		ClassId:  f.classId,
		ParentId: f.parentId,
	}
}

func TestCreateTeacherWritesBothSystems(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	teacher, err := s.CreateTeacher(context.Background(), teacherFields("teacher1", f.subjectId))
	require.NoError(t, err)

	identity, ok := directory.created[teacher.Id]
	require.True(t, ok, "identity should exist in the directory")
	assert.Equal(t, "teacher1", identity.Username)
	assert.Equal(t, schema.RoleTeacher, identity.Role)

	stored, err := schema.GetTeacher(teacher.Id, db)
	require.NoError(t, err)
	assert.Equal(t, "teacher1", stored.Username)
	require.Len(t, stored.Subjects, 1)
	assert.Equal(t, f.subjectId, stored.Subjects[0].Id)
}

func TestCreateTeacherValidation(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	tests := []struct {
		name   string
		modify func(*sync.TeacherFields)
	}{
		{"short username", func(f *sync.TeacherFields) { f.Username = "ab" }},
		{"short password", func(f *sync.TeacherFields) { f.Password = "short" }},
		{"bad phone", func(f *sync.TeacherFields) { f.Phone = "12345" }},
		{"bad sex", func(f *sync.TeacherFields) { f.Sex = "OTHER" }},
		{"no subjects", func(f *sync.TeacherFields) { f.SubjectIds = nil }},
		{"bad birthday", func(f *sync.TeacherFields) { f.Birthday = "not-a-date" }},
		{"bad email", func(f *sync.TeacherFields) { f.Email = "not-an-email" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fields := teacherFields("teacher1", f.subjectId)
			tc.modify(&fields)

			_, err := s.CreateTeacher(context.Background(), fields)
			assert.ErrorIs(t, err, sync.ErrValidation)
			assert.Empty(t, directory.created, "no identity should be created for invalid fields")
		})
	}
}

func TestCreateTeacherDuplicateIdentity(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	_, err := s.CreateTeacher(context.Background(), teacherFields("teacher1", f.subjectId))
	require.NoError(t, err)

	fields := teacherFields("teacher1", f.subjectId)
	fields.Phone = "0999999999"
	_, err = s.CreateTeacher(context.Background(), fields)
	assert.ErrorIs(t, err, sync.ErrDuplicateIdentity)
}

func TestCreateTeacherWeakCredential(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	directory.createErr = auth.ErrPasswordRejected
	s := sync.NewSynchronizer(db, directory)

	_, err := s.CreateTeacher(context.Background(), teacherFields("teacher1", f.subjectId))
	assert.ErrorIs(t, err, sync.ErrWeakCredential)
}

func TestCreateTeacherStoreFailureRollsBackIdentity(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	missingSubject := uuid.New()
	_, err := s.CreateTeacher(context.Background(), teacherFields("teacher1", missingSubject))
	require.ErrorIs(t, err, sync.ErrReferentialIntegrity)

	assert.Empty(t, directory.created, "orphaned identity should have been removed")
	require.Len(t, directory.deleted, 1)

	var count int64
	require.NoError(t, db.Model(&schema.Teacher{}).Count(&count).Error)
	assert.Zero(t, count)
	_ = f
}

func TestCreateStudentEnforcesClassCapacity(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	_, err := s.CreateStudent(context.Background(), studentFields("student1", f))
	require.NoError(t, err)
	_, err = s.CreateStudent(context.Background(), studentFields("student2", f))
	require.NoError(t, err)

	_, err = s.CreateStudent(context.Background(), studentFields("student3", f))
	assert.ErrorIs(t, err, sync.ErrClassFull)

	var count int64
	require.NoError(t, db.Model(&schema.Student{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	assert.Len(t, directory.created, 2, "the rejected student's identity should have been rolled back")
}

func TestCreateStudentMissingParent(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	fields := studentFields("student1", f)
	fields.ParentId = uuid.New()

	_, err := s.CreateStudent(context.Background(), fields)
	assert.ErrorIs(t, err, sync.ErrReferentialIntegrity)
	assert.Empty(t, directory.created)
}

func TestUpdateTeacher(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	teacher, err := s.CreateTeacher(context.Background(), teacherFields("teacher1", f.subjectId))
	require.NoError(t, err)

	fields := teacherFields("teacher1renamed", f.subjectId)
	fields.Password = ""
	require.NoError(t, s.UpdateTeacher(context.Background(), teacher.Id, fields))

	update, ok := directory.updated[teacher.Id]
	require.True(t, ok)
	assert.Equal(t, "teacher1renamed", update.Username)
	assert.Empty(t, update.Password, "empty password means the credential is unchanged")

	stored, err := schema.GetTeacher(teacher.Id, db)
	require.NoError(t, err)
	assert.Equal(t, "teacher1renamed", stored.Username)
}

func TestUpdateTeacherInvalidDate(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	teacher, err := s.CreateTeacher(context.Background(), teacherFields("teacher1", f.subjectId))
	require.NoError(t, err)

	fields := teacherFields("teacher1", f.subjectId)
	fields.Password = ""
	fields.Birthday = "05/01/1990"
	assert.ErrorIs(t, s.UpdateTeacher(context.Background(), teacher.Id, fields), sync.ErrInvalidDate)
}

func TestUpdateTeacherUnknownRecord(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	fields := teacherFields("teacher1", f.subjectId)
	fields.Password = ""

	assert.ErrorIs(t, s.UpdateTeacher(context.Background(), uuid.New(), fields), sync.ErrRecordNotFound)
	assert.ErrorIs(t, s.UpdateTeacher(context.Background(), uuid.Nil, fields), sync.ErrMissingIdentifier)
}

func TestDeleteTeacher(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	teacher, err := s.CreateTeacher(context.Background(), teacherFields("teacher1", f.subjectId))
	require.NoError(t, err)

	require.NoError(t, s.DeleteTeacher(context.Background(), teacher.Id))

	assert.Empty(t, directory.created)
	_, err = schema.GetTeacher(teacher.Id, db)
	assert.ErrorIs(t, err, schema.ErrTeacherNotFound)
}

func TestDeleteTeacherWithLessonsRefused(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	teacher, err := s.CreateTeacher(context.Background(), teacherFields("teacher1", f.subjectId))
	require.NoError(t, err)

	lesson := schema.Lesson{
		Id: uuid.New(), Name: "Math Monday",
		SubjectId: f.subjectId, ClassId: f.classId, TeacherId: teacher.Id,
	}
	require.NoError(t, db.Create(&lesson).Error)

	err = s.DeleteTeacher(context.Background(), teacher.Id)
	assert.ErrorIs(t, err, sync.ErrReferentialConstraint)

	_, err = schema.GetTeacher(teacher.Id, db)
	assert.NoError(t, err, "teacher row should survive a refused delete")
	assert.Contains(t, directory.created, teacher.Id, "identity should survive a refused delete")
}

func TestDeleteStudentRetryAfterPartialFailure(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	student, err := s.CreateStudent(context.Background(), studentFields("student1", f))
	require.NoError(t, err)

	// Simulate an earlier run that removed the identity but crashed before
	// the row delete. The retry must still succeed.
	require.NoError(t, directory.DeleteUser(context.Background(), student.Id))
	directory.deleted = nil

	require.NoError(t, s.DeleteStudent(context.Background(), student.Id))

	_, err = schema.GetStudent(student.Id, db)
	assert.ErrorIs(t, err, schema.ErrStudentNotFound)
}

func TestDeleteStudentRemovesDependents(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	teacher, err := s.CreateTeacher(context.Background(), teacherFields("teacher1", f.subjectId))
	require.NoError(t, err)
	student, err := s.CreateStudent(context.Background(), studentFields("student1", f))
	require.NoError(t, err)

	lesson := schema.Lesson{
		Id: uuid.New(), Name: "Math Monday",
		SubjectId: f.subjectId, ClassId: f.classId, TeacherId: teacher.Id,
	}
	require.NoError(t, db.Create(&lesson).Error)
	require.NoError(t, db.Create(&schema.Attendance{
		Id: uuid.New(), Present: true, StudentId: student.Id, LessonId: lesson.Id,
	}).Error)

	require.NoError(t, s.DeleteStudent(context.Background(), student.Id))

	var count int64
	require.NoError(t, db.Model(&schema.Attendance{}).Where("student_id = ?", student.Id).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteOutcomesAreCounted(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	student, err := s.CreateStudent(context.Background(), studentFields("student1", f))
	require.NoError(t, err)

	failures := metrics.SyncOperations.WithLabelValues("parent", "delete", metrics.OutcomeValidationError)
	before := testutil.ToFloat64(failures)

	err = s.DeleteParent(context.Background(), f.parentId)
	require.ErrorIs(t, err, sync.ErrReferentialConstraint)
	assert.Equal(t, before+1, testutil.ToFloat64(failures), "a refused delete must count as a failure")

	successes := metrics.SyncOperations.WithLabelValues("student", "delete", metrics.OutcomeSuccess)
	before = testutil.ToFloat64(successes)

	require.NoError(t, s.DeleteStudent(context.Background(), student.Id))
	assert.Equal(t, before+1, testutil.ToFloat64(successes))

	before = testutil.ToFloat64(failures)
	err = s.DeleteParent(context.Background(), uuid.New())
	require.ErrorIs(t, err, sync.ErrRecordNotFound)
	assert.Equal(t, before+1, testutil.ToFloat64(failures))
}

func TestDeleteParentWithStudentsRefused(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	_, err := s.CreateStudent(context.Background(), studentFields("student1", f))
	require.NoError(t, err)

	err = s.DeleteParent(context.Background(), f.parentId)
	assert.ErrorIs(t, err, sync.ErrReferentialConstraint)

	_, err = schema.GetParent(f.parentId, db)
	assert.NoError(t, err)
}

func TestCreateParent(t *testing.T) {
	db, _ := setupDb(t)
	directory := newFakeDirectory()
	s := sync.NewSynchronizer(db, directory)

	fields := sync.ParentFields{
		Username: "parent2", Password: "password123",
		Name: "Sam", Surname: "Lee", Phone: "0123456781", Address: "4 Main St",
	}

	parent, err := s.CreateParent(context.Background(), fields)
	require.NoError(t, err)
	assert.Equal(t, schema.RoleParent, directory.created[parent.Id].Role)

	// Phone uniqueness against the seeded parent.
	fields.Username = "parent3"
	fields.Phone = "0123456789"
	_, err = s.CreateParent(context.Background(), fields)
	assert.ErrorIs(t, err, sync.ErrDuplicateField)
}

func TestDirectoryOutageSurfacesAsProviderError(t *testing.T) {
	db, f := setupDb(t)
	directory := newFakeDirectory()
	directory.createErr = errors.New("connection refused")
	s := sync.NewSynchronizer(db, directory)

	_, err := s.CreateTeacher(context.Background(), teacherFields("teacher1", f.subjectId))
	assert.ErrorIs(t, err, sync.ErrIdentityProvider)
}
