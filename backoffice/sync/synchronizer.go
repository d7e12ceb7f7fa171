package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"school_platform/backoffice/auth"
	"school_platform/backoffice/metrics"
	"school_platform/backoffice/schema"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Synchronizer keeps the identity directory and the relational store aligned
// for teacher, student, and parent accounts. Creates write the directory
// first and roll the identity back if the row cannot be written, so a failure
// never leaves a person who can log in but has no record. Deletes remove the
// identity first and treat a missing identity as already-deleted, so retries
// converge.
type Synchronizer struct {
	db        *gorm.DB
	directory auth.Directory
	validate  *validator.Validate
}

func NewSynchronizer(db *gorm.DB, directory auth.Directory) *Synchronizer {
	return &Synchronizer{
		db:        db,
		directory: directory,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func mapDirectoryCreateError(err error) error {
	switch {
	case errors.Is(err, auth.ErrIdentifierTaken):
		return fmt.Errorf("%w: username", ErrDuplicateIdentity)
	case errors.Is(err, auth.ErrPasswordRejected):
		return ErrWeakCredential
	default:
		return fmt.Errorf("%w: %v", ErrIdentityProvider, err)
	}
}

func mapDirectoryUpdateError(err error) error {
	switch {
	case errors.Is(err, auth.ErrIdentityNotFound):
		return ErrRecordNotFound
	case errors.Is(err, auth.ErrIdentifierTaken):
		return fmt.Errorf("%w: username", ErrDuplicateIdentity)
	case errors.Is(err, auth.ErrPasswordRejected):
		return ErrWeakCredential
	default:
		return fmt.Errorf("%w: %v", ErrIdentityProvider, err)
	}
}

// compensate removes a directory identity created by an operation whose store
// write failed. Compensation failures are logged and counted but never change
// the returned error: the caller still sees the store failure.
func (s *Synchronizer) compensate(ctx context.Context, entity string, identityId uuid.UUID) {
	if err := s.directory.DeleteUser(ctx, identityId); err != nil && !errors.Is(err, auth.ErrIdentityNotFound) {
		slog.Error("failed to roll back directory identity after store failure, identity is orphaned",
			"entity", entity, "identity_id", identityId, "error", err)
		metrics.RecordRollbackFailure(entity)
	}
}

// checkUniqueFields returns ErrDuplicateField naming the first field already
// used by a different row of the given table. Checking up front keeps the
// error portable across databases instead of parsing driver-specific
// constraint violations.
func checkUniqueFields(txn *gorm.DB, table string, selfId uuid.UUID, username string, email, phone *string) error {
	checks := []struct {
		field string
		value interface{}
	}{
		{"username", username},
	}
	if email != nil {
		checks = append(checks, struct {
			field string
			value interface{}
		}{"email", *email})
	}
	if phone != nil {
		checks = append(checks, struct {
			field string
			value interface{}
		}{"phone", *phone})
	}

	for _, check := range checks {
		var count int64
		result := txn.Table(table).Where(fmt.Sprintf("%v = ? and id <> ?", check.field), check.value, selfId).Count(&count)
		if result.Error != nil {
			slog.Error("sql error checking unique fields", "table", table, "field", check.field, "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		if count > 0 {
			return duplicateFieldError(check.field)
		}
	}
	return nil
}

func checkSubjectsExist(txn *gorm.DB, subjectIds []uuid.UUID) ([]schema.Subject, error) {
	var subjects []schema.Subject
	if result := txn.Find(&subjects, "id in ?", subjectIds); result.Error != nil {
		slog.Error("sql error loading subjects", "error", result.Error)
		return nil, fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
	}
	if len(subjects) != len(subjectIds) {
		return nil, referentialError("subject")
	}
	return subjects, nil
}

func checkRowExists(txn *gorm.DB, model interface{}, id uuid.UUID, relation string) error {
	var count int64
	if result := txn.Model(model).Where("id = ?", id).Count(&count); result.Error != nil {
		slog.Error("sql error checking relation", "relation", relation, "error", result.Error)
		return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
	}
	if count == 0 {
		return referentialError(relation)
	}
	return nil
}

// checkClassHasRoom enforces the class capacity. The excluded id skips the
// student being moved so an in-place update does not count itself.
func checkClassHasRoom(txn *gorm.DB, classId uuid.UUID, excludeStudent uuid.UUID) error {
	class, err := schema.GetClass(classId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrClassNotFound) {
			return referentialError("class")
		}
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	var enrolled int64
	result := txn.Model(&schema.Student{}).Where("class_id = ? and id <> ?", classId, excludeStudent).Count(&enrolled)
	if result.Error != nil {
		slog.Error("sql error counting class enrollment", "class_id", classId, "error", result.Error)
		return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
	}
	if enrolled >= int64(class.Capacity) {
		return ErrClassFull
	}
	return nil
}

func (s *Synchronizer) CreateTeacher(ctx context.Context, fields TeacherFields) (schema.Teacher, error) {
	if err := checkFields(s.validate, fields); err != nil {
		metrics.RecordSync("teacher", "create", metrics.OutcomeValidationError)
		return schema.Teacher{}, err
	}
	if err := checkPassword(fields.Password, true); err != nil {
		metrics.RecordSync("teacher", "create", metrics.OutcomeValidationError)
		return schema.Teacher{}, err
	}
	birthday, err := parseBirthday(fields.Birthday, true)
	if err != nil {
		metrics.RecordSync("teacher", "create", metrics.OutcomeValidationError)
		return schema.Teacher{}, err
	}

	identityId, err := s.directory.CreateUser(ctx, auth.Identity{
		Username:  fields.Username,
		Password:  fields.Password,
		FirstName: fields.Name,
		LastName:  fields.Surname,
		Role:      schema.RoleTeacher,
	})
	if err != nil {
		metrics.RecordSync("teacher", "create", metrics.OutcomeDirectoryError)
		return schema.Teacher{}, mapDirectoryCreateError(err)
	}

	teacher := schema.Teacher{
		Id:        identityId,
		Username:  fields.Username,
		Name:      fields.Name,
		Surname:   fields.Surname,
		Email:     optional(fields.Email),
		Phone:     optional(fields.Phone),
		Address:   fields.Address,
		Img:       optional(fields.Img),
		BloodType: fields.BloodType,
		Sex:       fields.Sex,
		Birthday:  birthday,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUniqueFields(txn, "teachers", identityId, fields.Username, teacher.Email, teacher.Phone); err != nil {
			return err
		}
		subjects, err := checkSubjectsExist(txn, fields.SubjectIds)
		if err != nil {
			return err
		}
		teacher.Subjects = subjects

		if result := txn.Create(&teacher); result.Error != nil {
			slog.Error("sql error creating teacher", "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		return nil
	})
	if err != nil {
		s.compensate(ctx, "teacher", identityId)
		metrics.RecordSync("teacher", "create", metrics.OutcomeStoreError)
		return schema.Teacher{}, err
	}

	metrics.RecordSync("teacher", "create", metrics.OutcomeSuccess)
	return teacher, nil
}

func (s *Synchronizer) CreateStudent(ctx context.Context, fields StudentFields) (schema.Student, error) {
	if err := checkFields(s.validate, fields); err != nil {
		metrics.RecordSync("student", "create", metrics.OutcomeValidationError)
		return schema.Student{}, err
	}
	if err := checkPassword(fields.Password, true); err != nil {
		metrics.RecordSync("student", "create", metrics.OutcomeValidationError)
		return schema.Student{}, err
	}
	birthday, err := parseBirthday(fields.Birthday, true)
	if err != nil {
		metrics.RecordSync("student", "create", metrics.OutcomeValidationError)
		return schema.Student{}, err
	}

	identityId, err := s.directory.CreateUser(ctx, auth.Identity{
		Username:  fields.Username,
		Password:  fields.Password,
		FirstName: fields.Name,
		LastName:  fields.Surname,
		Role:      schema.RoleStudent,
	})
	if err != nil {
		metrics.RecordSync("student", "create", metrics.OutcomeDirectoryError)
		return schema.Student{}, mapDirectoryCreateError(err)
	}

	student := schema.Student{
		Id:        identityId,
		Username:  fields.Username,
		Name:      fields.Name,
		Surname:   fields.Surname,
		Email:     optional(fields.Email),
		Phone:     optional(fields.Phone),
		Address:   fields.Address,
		Img:       optional(fields.Img),
		BloodType: fields.BloodType,
		Sex:       fields.Sex,
		Birthday:  birthday,
		GradeId:   fields.GradeId,
		ClassId:   fields.ClassId,
		ParentId:  fields.ParentId,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUniqueFields(txn, "students", identityId, fields.Username, student.Email, student.Phone); err != nil {
			return err
		}
		if err := checkRowExists(txn, &schema.Grade{}, fields.GradeId, "grade"); err != nil {
			return err
		}
		if err := checkRowExists(txn, &schema.Parent{}, fields.ParentId, "parent"); err != nil {
			return err
		}
		if err := checkClassHasRoom(txn, fields.ClassId, identityId); err != nil {
			return err
		}

		if result := txn.Create(&student); result.Error != nil {
			slog.Error("sql error creating student", "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		return nil
	})
	if err != nil {
		s.compensate(ctx, "student", identityId)
		metrics.RecordSync("student", "create", metrics.OutcomeStoreError)
		return schema.Student{}, err
	}

	metrics.RecordSync("student", "create", metrics.OutcomeSuccess)
	return student, nil
}

func (s *Synchronizer) CreateParent(ctx context.Context, fields ParentFields) (schema.Parent, error) {
	if err := checkFields(s.validate, fields); err != nil {
		metrics.RecordSync("parent", "create", metrics.OutcomeValidationError)
		return schema.Parent{}, err
	}
	if err := checkPassword(fields.Password, true); err != nil {
		metrics.RecordSync("parent", "create", metrics.OutcomeValidationError)
		return schema.Parent{}, err
	}

	identityId, err := s.directory.CreateUser(ctx, auth.Identity{
		Username:  fields.Username,
		Password:  fields.Password,
		FirstName: fields.Name,
		LastName:  fields.Surname,
		Role:      schema.RoleParent,
	})
	if err != nil {
		metrics.RecordSync("parent", "create", metrics.OutcomeDirectoryError)
		return schema.Parent{}, mapDirectoryCreateError(err)
	}

	parent := schema.Parent{
		Id:       identityId,
		Username: fields.Username,
		Name:     fields.Name,
		Surname:  fields.Surname,
		Email:    optional(fields.Email),
		Phone:    fields.Phone,
		Address:  fields.Address,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		phone := parent.Phone
		if err := checkUniqueFields(txn, "parents", identityId, fields.Username, parent.Email, &phone); err != nil {
			return err
		}

		if result := txn.Create(&parent); result.Error != nil {
			slog.Error("sql error creating parent", "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		return nil
	})
	if err != nil {
		s.compensate(ctx, "parent", identityId)
		metrics.RecordSync("parent", "create", metrics.OutcomeStoreError)
		return schema.Parent{}, err
	}

	metrics.RecordSync("parent", "create", metrics.OutcomeSuccess)
	return parent, nil
}

// UpdateTeacher applies the new field values to both systems. The directory
// is written first; if the row write then fails the identity keeps the new
// values while the row keeps the old ones, which a retry of the same update
// repairs. There is no compensation for updates since the previous identity
// values are not known here.
func (s *Synchronizer) UpdateTeacher(ctx context.Context, teacherId uuid.UUID, fields TeacherFields) error {
	if teacherId == uuid.Nil {
		return ErrMissingIdentifier
	}
	if err := checkFields(s.validate, fields); err != nil {
		metrics.RecordSync("teacher", "update", metrics.OutcomeValidationError)
		return err
	}
	if err := checkPassword(fields.Password, false); err != nil {
		metrics.RecordSync("teacher", "update", metrics.OutcomeValidationError)
		return err
	}
	birthday, err := parseBirthday(fields.Birthday, false)
	if err != nil {
		metrics.RecordSync("teacher", "update", metrics.OutcomeValidationError)
		return err
	}

	err = s.directory.UpdateUser(ctx, teacherId, auth.IdentityUpdate{
		Username:  fields.Username,
		Password:  fields.Password,
		FirstName: fields.Name,
		LastName:  fields.Surname,
	})
	if err != nil {
		metrics.RecordSync("teacher", "update", metrics.OutcomeDirectoryError)
		return mapDirectoryUpdateError(err)
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		teacher, err := schema.GetTeacher(teacherId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrTeacherNotFound) {
				return ErrRecordNotFound
			}
			return fmt.Errorf("%w: %v", ErrStore, err)
		}

		teacher.Username = fields.Username
		teacher.Name = fields.Name
		teacher.Surname = fields.Surname
		teacher.Email = optional(fields.Email)
		teacher.Phone = optional(fields.Phone)
		teacher.Address = fields.Address
		teacher.Img = optional(fields.Img)
		teacher.BloodType = fields.BloodType
		teacher.Sex = fields.Sex
		teacher.Birthday = birthday

		if err := checkUniqueFields(txn, "teachers", teacherId, fields.Username, teacher.Email, teacher.Phone); err != nil {
			return err
		}
		subjects, err := checkSubjectsExist(txn, fields.SubjectIds)
		if err != nil {
			return err
		}

		if result := txn.Omit("Subjects").Save(&teacher); result.Error != nil {
			slog.Error("sql error updating teacher", "teacher_id", teacherId, "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		if err := txn.Model(&teacher).Association("Subjects").Replace(subjects); err != nil {
			slog.Error("sql error replacing teacher subjects", "teacher_id", teacherId, "error", err)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			metrics.RecordSync("teacher", "update", metrics.OutcomeStoreError)
		}
		return err
	}

	metrics.RecordSync("teacher", "update", metrics.OutcomeSuccess)
	return nil
}

func (s *Synchronizer) UpdateStudent(ctx context.Context, studentId uuid.UUID, fields StudentFields) error {
	if studentId == uuid.Nil {
		return ErrMissingIdentifier
	}
	if err := checkFields(s.validate, fields); err != nil {
		metrics.RecordSync("student", "update", metrics.OutcomeValidationError)
		return err
	}
	if err := checkPassword(fields.Password, false); err != nil {
		metrics.RecordSync("student", "update", metrics.OutcomeValidationError)
		return err
	}
	birthday, err := parseBirthday(fields.Birthday, false)
	if err != nil {
		metrics.RecordSync("student", "update", metrics.OutcomeValidationError)
		return err
	}

	err = s.directory.UpdateUser(ctx, studentId, auth.IdentityUpdate{
		Username:  fields.Username,
		Password:  fields.Password,
		FirstName: fields.Name,
		LastName:  fields.Surname,
	})
	if err != nil {
		metrics.RecordSync("student", "update", metrics.OutcomeDirectoryError)
		return mapDirectoryUpdateError(err)
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		student, err := schema.GetStudent(studentId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrStudentNotFound) {
				return ErrRecordNotFound
			}
			return fmt.Errorf("%w: %v", ErrStore, err)
		}

		student.Username = fields.Username
		student.Name = fields.Name
		student.Surname = fields.Surname
		student.Email = optional(fields.Email)
		student.Phone = optional(fields.Phone)
		student.Address = fields.Address
		student.Img = optional(fields.Img)
		student.BloodType = fields.BloodType
		student.Sex = fields.Sex
		student.Birthday = birthday
		student.GradeId = fields.GradeId
		student.ClassId = fields.ClassId
		student.ParentId = fields.ParentId

		if err := checkUniqueFields(txn, "students", studentId, fields.Username, student.Email, student.Phone); err != nil {
			return err
		}
		if err := checkRowExists(txn, &schema.Grade{}, fields.GradeId, "grade"); err != nil {
			return err
		}
		if err := checkRowExists(txn, &schema.Parent{}, fields.ParentId, "parent"); err != nil {
			return err
		}
		if err := checkClassHasRoom(txn, fields.ClassId, studentId); err != nil {
			return err
		}

		if result := txn.Save(&student); result.Error != nil {
			slog.Error("sql error updating student", "student_id", studentId, "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			metrics.RecordSync("student", "update", metrics.OutcomeStoreError)
		}
		return err
	}

	metrics.RecordSync("student", "update", metrics.OutcomeSuccess)
	return nil
}

func (s *Synchronizer) UpdateParent(ctx context.Context, parentId uuid.UUID, fields ParentFields) error {
	if parentId == uuid.Nil {
		return ErrMissingIdentifier
	}
	if err := checkFields(s.validate, fields); err != nil {
		metrics.RecordSync("parent", "update", metrics.OutcomeValidationError)
		return err
	}
	if err := checkPassword(fields.Password, false); err != nil {
		metrics.RecordSync("parent", "update", metrics.OutcomeValidationError)
		return err
	}

	err := s.directory.UpdateUser(ctx, parentId, auth.IdentityUpdate{
		Username:  fields.Username,
		Password:  fields.Password,
		FirstName: fields.Name,
		LastName:  fields.Surname,
	})
	if err != nil {
		metrics.RecordSync("parent", "update", metrics.OutcomeDirectoryError)
		return mapDirectoryUpdateError(err)
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		parent, err := schema.GetParent(parentId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrParentNotFound) {
				return ErrRecordNotFound
			}
			return fmt.Errorf("%w: %v", ErrStore, err)
		}

		parent.Username = fields.Username
		parent.Name = fields.Name
		parent.Surname = fields.Surname
		parent.Email = optional(fields.Email)
		parent.Phone = fields.Phone
		parent.Address = fields.Address

		phone := parent.Phone
		if err := checkUniqueFields(txn, "parents", parentId, fields.Username, parent.Email, &phone); err != nil {
			return err
		}

		if result := txn.Save(&parent); result.Error != nil {
			slog.Error("sql error updating parent", "parent_id", parentId, "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			metrics.RecordSync("parent", "update", metrics.OutcomeStoreError)
		}
		return err
	}

	metrics.RecordSync("parent", "update", metrics.OutcomeSuccess)
	return nil
}

// deleteIdentity removes the directory side of a delete. A missing identity
// is treated as already removed so that a retry after a partial failure
// succeeds. Other directory errors are logged and the store delete proceeds,
// since the row is the side users observe.
func (s *Synchronizer) deleteIdentity(ctx context.Context, entity string, id uuid.UUID) {
	if err := s.directory.DeleteUser(ctx, id); err != nil && !errors.Is(err, auth.ErrIdentityNotFound) {
		slog.Error("error deleting directory identity, proceeding with store delete",
			"entity", entity, "identity_id", id, "error", err)
	}
}

// recordDeleteFailure classifies a failed delete for the operation counter.
// Referential refusals and unknown records count as validation failures, only
// database faults count as store errors.
func recordDeleteFailure(entity string, err error) {
	if errors.Is(err, ErrStore) {
		metrics.RecordSync(entity, "delete", metrics.OutcomeStoreError)
		return
	}
	metrics.RecordSync(entity, "delete", metrics.OutcomeValidationError)
}

func (s *Synchronizer) DeleteTeacher(ctx context.Context, teacherId uuid.UUID) error {
	if teacherId == uuid.Nil {
		return ErrMissingIdentifier
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		var lessons int64
		if result := txn.Model(&schema.Lesson{}).Where("teacher_id = ?", teacherId).Count(&lessons); result.Error != nil {
			slog.Error("sql error counting teacher lessons", "teacher_id", teacherId, "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		if lessons > 0 {
			return fmt.Errorf("%w: lessons", ErrReferentialConstraint)
		}

		var supervised int64
		if result := txn.Model(&schema.Class{}).Where("supervisor_id = ?", teacherId).Count(&supervised); result.Error != nil {
			slog.Error("sql error counting supervised classes", "teacher_id", teacherId, "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		if supervised > 0 {
			return fmt.Errorf("%w: classes", ErrReferentialConstraint)
		}

		s.deleteIdentity(ctx, "teacher", teacherId)

		teacher := schema.Teacher{Id: teacherId}
		if err := txn.Model(&teacher).Association("Subjects").Clear(); err != nil {
			slog.Error("sql error clearing teacher subjects", "teacher_id", teacherId, "error", err)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}

		result := txn.Delete(&teacher)
		if result.Error != nil {
			slog.Error("sql error deleting teacher", "teacher_id", teacherId, "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		if result.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		recordDeleteFailure("teacher", err)
		return err
	}

	metrics.RecordSync("teacher", "delete", metrics.OutcomeSuccess)
	return nil
}

func (s *Synchronizer) DeleteStudent(ctx context.Context, studentId uuid.UUID) error {
	if studentId == uuid.Nil {
		return ErrMissingIdentifier
	}

	s.deleteIdentity(ctx, "student", studentId)

	err := s.db.Transaction(func(txn *gorm.DB) error {
		// Dependent rows are removed explicitly so the behavior does not
		// depend on the database enforcing cascade constraints.
		if result := txn.Where("student_id = ?", studentId).Delete(&schema.Attendance{}); result.Error != nil {
			slog.Error("sql error deleting student attendances", "student_id", studentId, "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		if result := txn.Where("student_id = ?", studentId).Delete(&schema.Result{}); result.Error != nil {
			slog.Error("sql error deleting student results", "student_id", studentId, "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}

		result := txn.Delete(&schema.Student{Id: studentId})
		if result.Error != nil {
			slog.Error("sql error deleting student", "student_id", studentId, "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		if result.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		recordDeleteFailure("student", err)
		return err
	}

	metrics.RecordSync("student", "delete", metrics.OutcomeSuccess)
	return nil
}

func (s *Synchronizer) DeleteParent(ctx context.Context, parentId uuid.UUID) error {
	if parentId == uuid.Nil {
		return ErrMissingIdentifier
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		var students int64
		if result := txn.Model(&schema.Student{}).Where("parent_id = ?", parentId).Count(&students); result.Error != nil {
			slog.Error("sql error counting parent students", "parent_id", parentId, "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		if students > 0 {
			return fmt.Errorf("%w: students", ErrReferentialConstraint)
		}

		s.deleteIdentity(ctx, "parent", parentId)

		result := txn.Delete(&schema.Parent{Id: parentId})
		if result.Error != nil {
			slog.Error("sql error deleting parent", "parent_id", parentId, "error", result.Error)
			return fmt.Errorf("%w: %v", ErrStore, schema.ErrDbAccessFailed)
		}
		if result.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		recordDeleteFailure("parent", err)
		return err
	}

	metrics.RecordSync("parent", "delete", metrics.OutcomeSuccess)
	return nil
}
