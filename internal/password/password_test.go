package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsStrongPassword(t *testing.T) {
	assert.Empty(t, Validate("Str0ng!pass"))
}

func TestValidateReportsEveryViolation(t *testing.T) {
	violations := Validate("abc")
	assert.ElementsMatch(t, []string{
		"password must be at least 8 characters",
		"password must contain an uppercase letter",
		"password must contain a digit",
		"password must contain a symbol",
	}, violations)
}

func TestValidateSingleViolations(t *testing.T) {
	cases := []struct {
		name     string
		password string
		want     string
	}{
		{"too short", "Ab1!xyz", "password must be at least 8 characters"},
		{"too long", strings.Repeat("Ab1!", 33), "password must be at most 128 characters"},
		{"no uppercase", "weak1!pass", "password must contain an uppercase letter"},
		{"no lowercase", "WEAK1!PASS", "password must contain a lowercase letter"},
		{"no digit", "Weakest!pass", "password must contain a digit"},
		{"no symbol", "Weak1passw", "password must contain a symbol"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			violations := Validate(tc.password)
			assert.Equal(t, []string{tc.want}, violations)
		})
	}
}

func TestHashAndCompare(t *testing.T) {
	hash, err := Hash("Str0ng!pass")
	require.NoError(t, err)
	require.NotEqual(t, "Str0ng!pass", hash)

	assert.NoError(t, Compare(hash, "Str0ng!pass"))
	assert.Error(t, Compare(hash, "Wr0ng!pass"))
}
