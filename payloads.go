package eventhive

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// Credentials is the login payload
type Credentials struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	UserType UserType `json:"userType"`
}

// Validate will run validation rules
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(
			&c.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&c.Password,
			validation.Required,
		),
		validation.Field(
			&c.UserType,
			validation.Required,
			validation.By(validateUserType),
		),
	)
}

// RegistrationForm is the shared payload for the three register endpoints.
// Organization registrations set OrganizationName; the rest leave it blank.
type RegistrationForm struct {
	DisplayName      string `json:"displayName"`
	OrganizationName string `json:"organizationName,omitempty"`
	Email            string `json:"email"`
	Phone            string `json:"phone,omitempty"`
	Password         string `json:"password"`
	ConfirmPassword  string `json:"confirmPassword"`
}

// Validate will validate the payload
func (r RegistrationForm) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DisplayName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.OrganizationName, validation.Length(0, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber)),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(8, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// OTPRequest exchanges a one-time code for a token pair
type OTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// Validate will run validation rules
func (r OTPRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.OTP, validation.Required, validation.Length(4, 8), is.Digit),
	)
}

// ForgotPasswordRequest kicks off a password reset
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ResetPasswordRequest finalizes a password reset
type ResetPasswordRequest struct {
	Email           string `json:"email"`
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Validate will run validation rules
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// ValidatePhoneNumber accepts an empty value or an internationally formatted
// number that parses as possible.
func ValidatePhoneNumber(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}

	num, err := phonenumbers.Parse(s, "ZZ")
	if err != nil {
		return errors.New("must be an international phone number")
	}

	if !phonenumbers.IsPossibleNumber(num) {
		return errors.New("must be a possible phone number")
	}

	return nil
}

func validateUserType(value any) error {
	switch v := value.(type) {
	case UserType:
		if !v.IsValid() {
			return errors.New("must be one of USER, ORGANIZATION, ADMIN")
		}
	case string:
		if _, ok := ParseUserType(v); !ok {
			return errors.New("must be one of USER, ORGANIZATION, ADMIN")
		}
	default:
		return errors.New("must be a user type")
	}
	return nil
}

// FormatValidationErrorToMap flattens validation errors into a field to
// message map for form rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr == nil {
				continue
			}
			out[strings.ToLower(field)] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}
