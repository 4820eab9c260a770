package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	Cost = bcrypt.MinCost
	m.Run()
}

func TestGetHash(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "regular password", password: "password123"},
		{name: "special chars", password: "p@ssw0rd!@#$%^&*()"},
		{name: "unicode", password: "пароль-секрет"},
		{name: "exactly 72 bytes", password: strings.Repeat("a", 72)},
		{name: "too long", password: strings.Repeat("a", 73), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := GetHash(tt.password)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "password.GetHash")
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, tt.password, hash)
			assert.NoError(t, CompareHash(hash, tt.password))
		})
	}
}

func TestCompareHash(t *testing.T) {
	hash, err := GetHash("correct_password")
	require.NoError(t, err)

	assert.NoError(t, CompareHash(hash, "correct_password"))
	assert.ErrorIs(t, CompareHash(hash, "wrong_password"), ErrMismatch)
	assert.ErrorIs(t, CompareHash(hash, ""), ErrMismatch)

	err = CompareHash("not-a-bcrypt-hash", "correct_password")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMismatch)
}

func TestGetHash_Salted(t *testing.T) {
	first, err := GetHash("same")
	require.NoError(t, err)
	second, err := GetHash("same")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
