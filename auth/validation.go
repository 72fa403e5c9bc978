package auth

import "strings"

const minPasswordLength = 8

// SignupForm is what the signup page posts
type SignupForm struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Trimmed returns the form with surrounding whitespace removed from every field
func (f SignupForm) Trimmed() SignupForm {
	return SignupForm{
		Username:        strings.TrimSpace(f.Username),
		Email:           strings.TrimSpace(f.Email),
		Password:        strings.TrimSpace(f.Password),
		ConfirmPassword: strings.TrimSpace(f.ConfirmPassword),
	}
}

// Validator checks forms before anything is sent to the backend
type Validator struct{}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateSignup applies the checks in the order the visitor sees them
func (v *Validator) ValidateSignup(form SignupForm) error {
	form = form.Trimmed()
	if form.Username == "" || form.Email == "" || form.Password == "" || form.ConfirmPassword == "" {
		return MissingSignupFieldsErr
	}
	if form.Password != form.ConfirmPassword {
		return UserPasswordsDontMatchErr
	}
	if len(form.Password) < minPasswordLength {
		return PasswordTooShortErr
	}
	return nil
}

// ValidateLogin requires both fields
func (v *Validator) ValidateLogin(username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return MissingCredentialsErr
	}
	return nil
}
