package sync

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// PersonFields are the fields shared by all identity-bearing entities. The
// Password is validated separately since it is required on create but means
// "leave unchanged" when empty on update. Birthday is carried as a string in
// the form payload and parsed to a date ("2006-01-02").
type PersonFields struct {
	Username  string `json:"username" validate:"required,min=3,max=20"`
	Password  string `json:"password"`
	Name      string `json:"name" validate:"required"`
	Surname   string `json:"surname" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"omitempty,len=10,startswith=0,number"`
	Address   string `json:"address" validate:"required"`
	Img       string `json:"img"`
	BloodType string `json:"blood_type"`
	Sex       string `json:"sex" validate:"required,oneof=MALE FEMALE"`
	Birthday  string `json:"birthday" validate:"required"`
}

type TeacherFields struct {
	PersonFields
	SubjectIds []uuid.UUID `json:"subject_ids" validate:"min=1"`
}

type StudentFields struct {
	PersonFields
	GradeId  uuid.UUID `json:"grade_id" validate:"required"`
	ClassId  uuid.UUID `json:"class_id" validate:"required"`
	ParentId uuid.UUID `json:"parent_id" validate:"required"`
}

// Parents carry no birthday/sex and their phone is mandatory.
type ParentFields struct {
	Username string `json:"username" validate:"required,min=3,max=20"`
	Password string `json:"password"`
	Name     string `json:"name" validate:"required"`
	Surname  string `json:"surname" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"required,min=10"`
	Address  string `json:"address" validate:"required"`
}

const minPasswordLen = 8

const birthdayLayout = "2006-01-02"

// checkFields reports the first failing field so the caller can surface a
// single actionable message, matching the behavior of the form layer.
func checkFields(validate *validator.Validate, fields interface{}) error {
	if err := validate.Struct(fields); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return validationError(fieldErrs[0].Field())
		}
		return validationError(err.Error())
	}
	return nil
}

func checkPassword(password string, required bool) error {
	if password == "" {
		if required {
			return validationError("Password")
		}
		return nil
	}
	if len(password) < minPasswordLen {
		return validationError("Password")
	}
	return nil
}

func parseBirthday(birthday string, onCreate bool) (time.Time, error) {
	date, err := time.Parse(birthdayLayout, birthday)
	if err != nil {
		if onCreate {
			return time.Time{}, validationError("Birthday")
		}
		return time.Time{}, ErrInvalidDate
	}
	return date, nil
}
