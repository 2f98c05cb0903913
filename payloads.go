package authclient

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// LoginRequest payload
type LoginRequest struct {
	Identifier string   `json:"email"`
	Password   string   `json:"password"`
	RoleHint   UserRole `json:"user_type,omitempty"`
	RememberMe bool     `json:"-"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession reports whether the user asked to stay signed in
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

// RegisterRequest is the registration payload
type RegisterRequest struct {
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone_number,omitempty"`
	Role            UserRole `json:"user_type"`
	Password        string   `json:"password"`
	ConfirmPassword string   `json:"confirm_password"`
}

// Validate will validate the payload
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber("US"))),
		validation.Field(&r.Role, validation.By(validateOptionalRole)),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

// PasswordResetRequest finalizes a password reset issued via email link.
type PasswordResetRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"password_confirm"`
}

// Validate will validate the payload
func (r PasswordResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
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

// ValidatePhoneNumber checks an optional phone field against the given
// default region. Empty values pass; Required handles presence separately.
func ValidatePhoneNumber(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}

		number, err := phonenumbers.Parse(s, region)
		if err != nil {
			return errors.New("must be a valid phone number")
		}

		if !phonenumbers.IsValidNumber(number) {
			return errors.New("must be a valid phone number")
		}

		return nil
	}
}

func validateOptionalRole(value any) error {
	role, _ := value.(UserRole)
	if role == "" {
		return nil
	}
	if !role.IsValid() {
		return errors.New("must be one of patient, doctor, admin")
	}
	return nil
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map for the ValidationFailure metadata.
func FormatValidationErrorToMap(err error) map[string]string {
	if err == nil {
		return nil
	}

	out := map[string]string{}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		for field, ferr := range fieldErrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["payload"] = err.Error()
	return out
}
