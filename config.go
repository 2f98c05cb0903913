package authclient

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// Config holds the SDK options. Endpoint paths default to the portal API
// layout but stay configurable since they are deployment details, not
// contract. Role home routes live here too: which page a role lands on is
// routing data, not session logic.
type Config struct {
	BaseURL string `env:"PORTAL_API_URL" envDefault:"http://localhost:8000/api/v1"`

	TokenPath         string `env:"PORTAL_AUTH_TOKEN_PATH" envDefault:"/token/"`
	RefreshPath       string `env:"PORTAL_AUTH_REFRESH_PATH" envDefault:"/token/refresh/"`
	RegisterPath      string `env:"PORTAL_AUTH_REGISTER_PATH" envDefault:"/register/"`
	CurrentUserPath   string `env:"PORTAL_AUTH_CURRENT_USER_PATH" envDefault:"/users/me/"`
	ProfilePath       string `env:"PORTAL_AUTH_PROFILE_PATH" envDefault:"/users/me/"`
	DeactivatePath    string `env:"PORTAL_AUTH_DEACTIVATE_PATH" envDefault:"/deactivate/"`
	VerifyEmailPath   string `env:"PORTAL_AUTH_VERIFY_EMAIL_PATH" envDefault:"/verify-email/"`
	PasswordResetPath string `env:"PORTAL_AUTH_PASSWORD_RESET_PATH" envDefault:"/password-reset/"`

	LoginRoute           string `env:"PORTAL_AUTH_LOGIN_ROUTE" envDefault:"/login"`
	VerifyRequiredRoute  string `env:"PORTAL_AUTH_VERIFY_ROUTE" envDefault:"/verify-email-required"`
	ApprovalPendingRoute string `env:"PORTAL_AUTH_APPROVAL_ROUTE" envDefault:"/doctor/approval-pending"`
	DefaultRoute         string `env:"PORTAL_AUTH_DEFAULT_ROUTE" envDefault:"/"`

	PatientHomeRoute string `env:"PORTAL_AUTH_PATIENT_HOME" envDefault:"/patient/dashboard"`
	DoctorHomeRoute  string `env:"PORTAL_AUTH_DOCTOR_HOME" envDefault:"/doctor/dashboard"`
	AdminHomeRoute   string `env:"PORTAL_AUTH_ADMIN_HOME" envDefault:"/admin/dashboard"`

	RequestTimeout time.Duration `env:"PORTAL_AUTH_TIMEOUT" envDefault:"15s"`

	// StoragePath is the credential file used by store.NewFileStore when the
	// host application opts into file persistence. Empty means in-memory.
	StoragePath string `env:"PORTAL_AUTH_STORAGE"`

	Debug bool `env:"PORTAL_AUTH_DEBUG"`
}

// LoadConfig reads configuration from the environment and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse auth client environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate will run validation rules
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.TokenPath, validation.Required),
		validation.Field(&c.RefreshPath, validation.Required),
		validation.Field(&c.CurrentUserPath, validation.Required),
		validation.Field(&c.LoginRoute, validation.Required),
	)
	if err != nil {
		return NewValidationError(FormatValidationErrorToMap(err))
	}
	return nil
}

// GuardRoutes derives the route-guard configuration from the config values.
func (c Config) GuardRoutes() GuardRoutes {
	return GuardRoutes{
		Login:           c.LoginRoute,
		VerifyRequired:  c.VerifyRequiredRoute,
		ApprovalPending: c.ApprovalPendingRoute,
		Default:         c.DefaultRoute,
		RoleHome: map[UserRole]string{
			RolePatient: c.PatientHomeRoute,
			RoleDoctor:  c.DoctorHomeRoute,
			RoleAdmin:   c.AdminHomeRoute,
		},
	}
}

// Endpoint joins the base URL with a relative path.
func (c Config) Endpoint(path string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}
