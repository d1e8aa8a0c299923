package authflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterFormState_SubmitDisabledUntilTermsAccepted(t *testing.T) {
	s := NewRegisterFormState(DefaultPasswordPolicy())
	s.Set(FieldEmail, "new@example.com")
	s.Set(FieldPassword, "Password1")
	s.Set(FieldConfirmPassword, "Password1")

	assert.False(t, s.CanSubmit())

	s.SetAcceptTerms(true)
	assert.True(t, s.CanSubmit())

	s.SetBusy(true)
	assert.False(t, s.CanSubmit())
}

func TestRegisterFormState_ValidatesOnBlur(t *testing.T) {
	s := NewRegisterFormState(DefaultPasswordPolicy())
	s.Set(FieldEmail, "not-an-email")

	// not touched yet
	assert.Nil(t, s.FieldError(FieldEmail))

	s.Touch(FieldEmail)
	require.NotNil(t, s.FieldError(FieldEmail))
	assert.Equal(t, ErrCodeInvalidEmail, s.FieldError(FieldEmail).Code)

	s.Set(FieldEmail, "ok@example.com")
	assert.Nil(t, s.FieldError(FieldEmail))
}

func TestRegisterFormState_ConfirmTracksPassword(t *testing.T) {
	s := NewRegisterFormState(DefaultPasswordPolicy())
	s.Set(FieldPassword, "Password1")
	s.Set(FieldConfirmPassword, "Password1")
	s.Touch(FieldConfirmPassword)
	assert.Nil(t, s.FieldError(FieldConfirmPassword))

	// changing the password alone flags the mismatch
	s.Set(FieldPassword, "Password2")
	require.NotNil(t, s.FieldError(FieldConfirmPassword))
	assert.Equal(t, ErrCodePasswordMismatch, s.FieldError(FieldConfirmPassword).Code)

	s.Set(FieldConfirmPassword, "Password2")
	assert.Nil(t, s.FieldError(FieldConfirmPassword))
}

func TestRegisterFormState_Submit(t *testing.T) {
	s := NewRegisterFormState(DefaultPasswordPolicy())
	s.Set(FieldEmail, "new@example.com")
	s.Set(FieldPassword, "weak")
	s.Set(FieldConfirmPassword, "weak")
	s.SetAcceptTerms(true)

	_, err := s.Submit()
	require.Error(t, err)
	assert.NotNil(t, s.FieldError(FieldPassword))

	s.Set(FieldPassword, "Password1")
	s.Set(FieldConfirmPassword, "Password1")
	form, err := s.Submit()
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", form.Email)
}
