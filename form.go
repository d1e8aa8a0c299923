package authflow

// Field names used by RegisterFormState and FieldErrors
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirmPassword"
	FieldFirstName       = "firstName"
	FieldLastName        = "lastName"
	FieldAcceptTerms     = "acceptTerms"
	FieldToken           = "token"
)

// RegisterFormState tracks a registration form as the user edits it.
// Fields are validated on blur (Touch) and on Submit; once touched, the
// password/confirm pair is rechecked whenever either side changes.
type RegisterFormState struct {
	Form    RegisterForm
	Policy  PasswordPolicy
	touched map[string]bool
	errors  FieldErrors
	busy    bool
}

// NewRegisterFormState creates an empty form using policy
func NewRegisterFormState(policy PasswordPolicy) *RegisterFormState {
	return &RegisterFormState{
		Policy:  policy,
		touched: map[string]bool{},
		errors:  FieldErrors{},
	}
}

// Set updates a text field value
func (s *RegisterFormState) Set(field, value string) {
	switch field {
	case FieldEmail:
		s.Form.Email = value
	case FieldPassword:
		s.Form.Password = value
	case FieldConfirmPassword:
		s.Form.ConfirmPassword = value
	case FieldFirstName:
		s.Form.FirstName = value
	case FieldLastName:
		s.Form.LastName = value
	default:
		return
	}
	if s.touched[field] {
		s.validateField(field)
	}
	// confirm tracks password reactively
	if field == FieldPassword && s.touched[FieldConfirmPassword] {
		s.validateField(FieldConfirmPassword)
	}
}

// SetAcceptTerms toggles the terms checkbox
func (s *RegisterFormState) SetAcceptTerms(accepted bool) {
	s.Form.AcceptTerms = accepted
	s.touched[FieldAcceptTerms] = true
	s.validateField(FieldAcceptTerms)
}

// Touch marks a field as blurred and validates it
func (s *RegisterFormState) Touch(field string) {
	s.touched[field] = true
	s.validateField(field)
}

func (s *RegisterFormState) validateField(field string) {
	delete(s.errors, field)
	var err *AuthError
	switch field {
	case FieldEmail:
		err = ValidateEmail(s.Form.Email)
	case FieldPassword:
		err = ValidatePassword(s.Form.Password, s.Policy)
	case FieldConfirmPassword:
		err = ValidateConfirmPassword(s.Form.Password, s.Form.ConfirmPassword)
	case FieldAcceptTerms:
		if !s.Form.AcceptTerms {
			err = NewAuthError(ErrCodeTermsNotAccepted, "You must accept the terms and conditions", FieldAcceptTerms)
		}
	}
	s.errors.Add(err)
}

// FieldError returns the current error for field, or nil
func (s *RegisterFormState) FieldError(field string) *AuthError {
	return s.errors[field]
}

// Errors returns a copy of the current field errors
func (s *RegisterFormState) Errors() FieldErrors {
	out := make(FieldErrors, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// CanSubmit reports whether the submit button is enabled: terms accepted
// and no request in flight.
func (s *RegisterFormState) CanSubmit() bool {
	return s.Form.AcceptTerms && !s.busy
}

// SetBusy toggles the in-flight flag
func (s *RegisterFormState) SetBusy(busy bool) { s.busy = busy }

// Submit validates every field, marking them all touched, and returns the
// form when valid.
func (s *RegisterFormState) Submit() (RegisterForm, error) {
	for _, f := range []string{FieldEmail, FieldPassword, FieldConfirmPassword, FieldAcceptTerms} {
		s.touched[f] = true
	}
	s.errors = s.Form.Validate(s.Policy)
	if err := s.errors.Err(); err != nil {
		return RegisterForm{}, err
	}
	return s.Form, nil
}
