package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "authgate/pkg/domain-errors"
)

func TestLoginRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     LoginRequest
		wantErr bool
	}{
		{"valid", LoginRequest{Email: "a@b.com", Password: "secret"}, false},
		{"missing email", LoginRequest{Password: "secret"}, true},
		{"bad email", LoginRequest{Email: "not-an-email", Password: "secret"}, true},
		{"missing password", LoginRequest{Email: "a@b.com"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRegisterRequestValidate(t *testing.T) {
	short := RegisterRequest{Email: "a@b.com", Password: "short"}
	assert.ErrorContains(t, short.Validate(), "at least 8")

	long := RegisterRequest{Email: "a@b.com", Password: "longenough", Name: strings.Repeat("x", 300)}
	assert.Error(t, long.Validate())

	ok := RegisterRequest{Email: "a@b.com", Password: "longenough", Name: "Ada"}
	assert.NoError(t, ok.Validate())
}

func TestNormalize(t *testing.T) {
	req := LoginRequest{Email: "  A@B.com "}
	req.Normalize()
	assert.Equal(t, "a@b.com", req.Email)
}

func TestSessionRequestValidate(t *testing.T) {
	assert.Error(t, (&SessionRequest{Token: "  "}).Validate())
	assert.NoError(t, (&SessionRequest{Token: "tok123"}).Validate())
}
