package tests

import (
	"bytes"
	"testing"

	"school_platform/backoffice/auth"
	"school_platform/backoffice/schema"
	"school_platform/backoffice/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	backoffice services.Backoffice
	api        chi.Router
	db         *gorm.DB
}

const (
	adminUsername = "admin123"
	adminEmail    = "admin123@mail.com"
	adminPassword = "admin_password123"
)

func setupTestEnv(t *testing.T) *testEnv {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}

	if err := db.AutoMigrate(schema.AllModels()...); err != nil {
		t.Fatal(err)
	}

	userAuth, err := auth.NewBasicProvider(
		db,
		auth.NewAuditLogger(new(bytes.Buffer)),
		auth.BasicProviderArgs{
			Secret:        []byte("290zcv02ai249"),
			AdminUsername: adminUsername,
			AdminEmail:    adminEmail,
			AdminPassword: adminPassword,
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	backoffice := services.NewBackoffice(db, userAuth)

	return &testEnv{backoffice: backoffice, api: backoffice.Routes(), db: db}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (env *testEnv) adminClient(t *testing.T) client {
	c := env.newClient()
	require.NoError(t, c.login(adminUsername, adminPassword))
	return c
}

type structure struct {
	GradeId   uuid.UUID
	ClassId   uuid.UUID
	SubjectId uuid.UUID
}

// seedStructure creates the minimum school structure needed to enroll
// students: one grade, one class, and one subject.
func (env *testEnv) seedStructure(t *testing.T, capacity int) structure {
	s := structure{GradeId: uuid.New(), ClassId: uuid.New(), SubjectId: uuid.New()}

	require.NoError(t, env.db.Create(&schema.Grade{Id: s.GradeId, Level: 1}).Error)
	require.NoError(t, env.db.Create(&schema.Class{Id: s.ClassId, Name: "1A", Capacity: capacity, GradeId: s.GradeId}).Error)
	require.NoError(t, env.db.Create(&schema.Subject{Id: s.SubjectId, Name: "Math"}).Error)

	return s
}

func teacherPayload(username string, subjectIds ...uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"username":    username,
		"password":    username + "_password",
		"name":        "Alice",
		"surname":     "Smith",
		"phone":       "0123456780",
		"address":     "2 Main St",
		"sex":         schema.SexFemale,
		"birthday":    "1990-05-01",
		"subject_ids": subjectIds,
	}
}

func parentPayload(username, phone string) map[string]interface{} {
	return map[string]interface{}{
		"username": username,
		"password": username + "_password",
		"name":     "Pat",
		"surname":  "Doe",
		"phone":    phone,
		"address":  "1 Main St",
	}
}

func studentPayload(username string, s structure, parentId uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"username":  username,
		"password":  username + "_password",
		"name":      "Bob",
		"surname":   "Jones",
		"address":   "3 Main St",
		"sex":       schema.SexMale,
		"birthday":  "2012-09-01",
		"grade_id":  s.GradeId,
		"class_id":  s.ClassId,
		"parent_id": parentId,
	}
}
