package validation

import (
	"testing"

	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=8"`
	Address  struct {
		City string `json:"city" validate:"required"`
	} `json:"address"`
}

func TestStruct(t *testing.T) {
	ok := signup{Name: "Asha", Email: "asha@x.com", Password: "Secret123"}
	ok.Address.City = "Pune"
	require.NoError(t, Struct(ok))

	tests := []struct {
		name string
		in   func(s *signup)
		msg  string
	}{
		{"missing name", func(s *signup) { s.Name = "" }, "name is required"},
		{"bad email", func(s *signup) { s.Email = "nope" }, "email must be a valid email"},
		{"short password", func(s *signup) { s.Password = "short" }, "password must be at least 8 characters"},
		{"nested", func(s *signup) { s.Address.City = "" }, "address.city is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ok
			tt.in(&s)
			err := Struct(s)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
