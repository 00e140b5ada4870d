package password

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerify(t *testing.T) {
	phc, err := Hash(Fast, "correct horse")
	require.NoError(t, err)
	assert.Contains(t, phc, "$argon2id$v=19$m=8192,t=1,p=1$")

	assert.True(t, Verify("correct horse", phc))
	assert.False(t, Verify("wrong horse", phc))
	assert.False(t, Verify("correct horse", "$argon2id$garbage"))
	assert.False(t, Verify("correct horse", ""))

	_, err = Hash(Fast, "")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestVerifyDummyNeverPanics(t *testing.T) {
	VerifyDummy(Fast, "anything")
	VerifyDummy(Fast, "")
}

func TestPolicyCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bl.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nPassword123\n"), 0o600))
	bl, err := LoadBlacklist(path)
	require.NoError(t, err)

	p := Policy{MinLength: 8, RequireDigit: true}
	assert.NoError(t, p.Check("hunter2hunter2", bl))
	assert.ErrorIs(t, p.Check("short1", bl), ErrWeakPassword)
	assert.ErrorIs(t, p.Check("nodigitshere", nil), ErrWeakPassword)
	assert.ErrorIs(t, p.Check("password123", bl), ErrWeakPassword)
}

func TestBlacklist(t *testing.T) {
	bl, err := ReadBlacklist(strings.NewReader("\n# top\n  Qwerty123 \nletmein\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, bl.Len())
	assert.True(t, bl.Contains("QWERTY123"))
	assert.False(t, bl.Contains("# top"))

	var none *Blacklist
	assert.False(t, none.Contains("letmein"))
	assert.Equal(t, 0, none.Len())
	assert.True(t, NewBlacklist("", "x").Contains(" X "))

	_, err = LoadBlacklist(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
