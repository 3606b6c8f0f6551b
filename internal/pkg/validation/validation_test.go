package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	valid := []string{"ravi@example.com", "a.b+tag@sub.example.co.in"}
	for _, e := range valid {
		assert.True(t, IsValidEmail(e), e)
	}
	invalid := []string{"", "not-an-email", "@example.com", "ravi@", "ravi @example.com"}
	for _, e := range invalid {
		assert.False(t, IsValidEmail(e), e)
	}
}

func TestIsValidPassword(t *testing.T) {
	valid := []string{"Secret#123", "p@ssw0rdX", "longer-secret-9!"}
	for _, p := range valid {
		assert.True(t, IsValidPassword(p), p)
	}
	invalid := []string{"", "short#1", "alllowercase!", "12345678!", "NoSpecial1"}
	for _, p := range invalid {
		assert.False(t, IsValidPassword(p), p)
	}
}

func TestIsValidFullname(t *testing.T) {
	valid := []string{"Ravi Kumar", "Mary-Jane O'Neil"}
	for _, n := range valid {
		assert.True(t, IsValidFullname(n), n)
	}
	invalid := []string{"", "Ravi123", "<script>"}
	for _, n := range invalid {
		assert.False(t, IsValidFullname(n), n)
	}
}
