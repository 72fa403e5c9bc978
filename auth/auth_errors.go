package auth

import "errors"

var (
	MissingCredentialsErr     = errors.New("Please provide username and password")
	MissingSignupFieldsErr    = errors.New("Please fill out all the fields")
	UserPasswordsDontMatchErr = errors.New("Both passwords are not similar")
	PasswordTooShortErr       = errors.New("Password must be at least 8 characters")
	LoginFailedErr            = errors.New("Login failed. Please try again.")
	SignupFailedErr           = errors.New("Signup failed. Please try again.")
)
