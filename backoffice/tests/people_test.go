package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRequired(t *testing.T) {
	env := setupTestEnv(t)

	c := env.newClient()
	err := c.Get("/people/students").Do(nil)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = c.login(adminUsername, "wrong_password")
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = c.login("no_such_user", "whatever_password")
	assert.ErrorIs(t, err, ErrUnauthorized, "unknown usernames must be indistinguishable from bad passwords")
}

func TestCallerInfo(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)

	var info map[string]string
	require.NoError(t, admin.Get("/session/info").Do(&info))
	assert.Equal(t, "admin", info["role"])
	assert.Equal(t, admin.callerId.String(), info["caller_id"])
}

func TestPersonLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	s := env.seedStructure(t, 10)

	parent, err := admin.createParent(parentPayload("parent1", "0123456789"))
	require.NoError(t, err)

	teacher, err := admin.createTeacher(teacherPayload("teacher1", s.SubjectId))
	require.NoError(t, err)

	student, err := admin.createStudent(studentPayload("student1", s, parent.Id))
	require.NoError(t, err)

	// All three can log in with the credentials written to the directory.
	for _, username := range []string{"parent1", "teacher1", "student1"} {
		c := env.newClient()
		require.NoError(t, c.login(username, username+"_password"))
	}

	got, err := admin.getTeacher(teacher.Id)
	require.NoError(t, err)
	assert.Equal(t, "teacher1", got.Username)
	require.Len(t, got.Subjects, 1)
	assert.Equal(t, s.SubjectId, got.Subjects[0].Id)

	// Updating the teacher with no password keeps the old login working.
	update := teacherPayload("teacher1", s.SubjectId)
	update["password"] = ""
	update["name"] = "Renamed"
	require.NoError(t, admin.Post(fmt.Sprintf("/people/teachers/%v", teacher.Id)).Json(update).Do(nil))

	c := env.newClient()
	require.NoError(t, c.login("teacher1", "teacher1_password"))

	got, err = admin.getTeacher(teacher.Id)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	// A parent with enrolled students cannot be removed.
	err = admin.Delete(fmt.Sprintf("/people/parents/%v", parent.Id)).ExpectStatus(http.StatusUnprocessableEntity).Do(nil)
	assert.NoError(t, err)

	require.NoError(t, admin.Delete(fmt.Sprintf("/people/students/%v", student.Id)).Do(nil))
	err = admin.Get(fmt.Sprintf("/people/students/%v", student.Id)).ExpectStatus(http.StatusNotFound).Do(nil)
	assert.NoError(t, err)

	// The deleted student can no longer log in.
	c = env.newClient()
	assert.ErrorIs(t, c.login("student1", "student1_password"), ErrUnauthorized)

	// With the student gone the parent delete goes through.
	require.NoError(t, admin.Delete(fmt.Sprintf("/people/parents/%v", parent.Id)).Do(nil))
}

func TestCreateConflictsAndValidation(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	s := env.seedStructure(t, 1)

	_, err := admin.createTeacher(teacherPayload("teacher1", s.SubjectId))
	require.NoError(t, err)

	// Same username again.
	err = admin.Post("/people/teachers").Json(teacherPayload("teacher1", s.SubjectId)).ExpectStatus(http.StatusConflict).Do(nil)
	assert.NoError(t, err)

	// Invalid payloads are rejected before anything is written.
	bad := teacherPayload("teacher2", s.SubjectId)
	bad["sex"] = "OTHER"
	err = admin.Post("/people/teachers").Json(bad).ExpectStatus(http.StatusUnprocessableEntity).Do(nil)
	assert.NoError(t, err)

	weak := teacherPayload("teacher2", s.SubjectId)
	weak["password"] = "short"
	err = admin.Post("/people/teachers").Json(weak).ExpectStatus(http.StatusUnprocessableEntity).Do(nil)
	assert.NoError(t, err)

	// The rejected usernames never reached the directory.
	c := env.newClient()
	assert.ErrorIs(t, c.login("teacher2", "short"), ErrUnauthorized)

	parent, err := admin.createParent(parentPayload("parent1", "0123456789"))
	require.NoError(t, err)

	_, err = admin.createStudent(studentPayload("student1", s, parent.Id))
	require.NoError(t, err)

	// The class only has room for one student.
	err = admin.Post("/people/students").Json(studentPayload("student2", s, parent.Id)).ExpectStatus(http.StatusConflict).Do(nil)
	assert.NoError(t, err)

	c = env.newClient()
	assert.ErrorIs(t, c.login("student2", "student2_password"), ErrUnauthorized,
		"identity rolled back after the row write was refused")
}

func TestMutationsAreAdminOnly(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	s := env.seedStructure(t, 10)

	_, err := admin.createTeacher(teacherPayload("teacher1", s.SubjectId))
	require.NoError(t, err)

	teacher := env.newClient()
	require.NoError(t, teacher.login("teacher1", "teacher1_password"))

	err = teacher.Post("/people/teachers").Json(teacherPayload("teacher2", s.SubjectId)).ExpectStatus(http.StatusForbidden).Do(nil)
	assert.NoError(t, err)

	err = teacher.Post("/people/parents").Json(parentPayload("parent1", "0123456789")).ExpectStatus(http.StatusForbidden).Do(nil)
	assert.NoError(t, err)
}

func TestStudentListingIsScopedPerRole(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	s := env.seedStructure(t, 10)

	parentA, err := admin.createParent(parentPayload("parenta", "0123456781"))
	require.NoError(t, err)
	parentB, err := admin.createParent(parentPayload("parentb", "0123456782"))
	require.NoError(t, err)

	_, err = admin.createStudent(studentPayload("amy", s, parentA.Id))
	require.NoError(t, err)
	_, err = admin.createStudent(studentPayload("adam", s, parentA.Id))
	require.NoError(t, err)
	_, err = admin.createStudent(studentPayload("beth", s, parentB.Id))
	require.NoError(t, err)

	all, err := admin.listStudents("")
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)

	pa := env.newClient()
	require.NoError(t, pa.login("parenta", "parenta_password"))
	mine, err := pa.listStudents("")
	require.NoError(t, err)
	require.Equal(t, int64(2), mine.Total)
	for _, student := range mine.Items {
		assert.Equal(t, parentA.Id, student.ParentId)
	}

	// Search narrows within the parent's scope, never beyond it.
	matched, err := pa.listStudents("?search=beth")
	require.NoError(t, err)
	assert.Equal(t, int64(0), matched.Total)

	student := env.newClient()
	require.NoError(t, student.login("beth", "beth_password"))
	self, err := student.listStudents("")
	require.NoError(t, err)
	require.Equal(t, int64(1), self.Total)
	assert.Equal(t, "beth", self.Items[0].Username)

	// A parent cannot fetch another family's child directly either.
	err = pa.Get(fmt.Sprintf("/people/students/%v", self.Items[0].Id)).ExpectStatus(http.StatusForbidden).Do(nil)
	assert.NoError(t, err)
}

func TestPagination(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	s := env.seedStructure(t, 50)

	parent, err := admin.createParent(parentPayload("parent1", "0123456789"))
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		_, err := admin.createStudent(studentPayload(fmt.Sprintf("student%02d", i), s, parent.Id))
		require.NoError(t, err)
	}

	first, err := admin.listStudents("?page=1&per_page=5")
	require.NoError(t, err)
	assert.Equal(t, int64(12), first.Total)
	assert.Len(t, first.Items, 5)

	last, err := admin.listStudents("?page=3&per_page=5")
	require.NoError(t, err)
	assert.Equal(t, int64(12), last.Total)
	assert.Len(t, last.Items, 2)
}
