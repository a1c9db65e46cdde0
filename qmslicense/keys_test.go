package qmslicense

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyManager_Generate(t *testing.T) {
	fs := afero.NewMemMapFs()
	km := NewKeyManager(fs)

	kp, err := km.Generate("/srv/keys")
	require.NoError(t, err)
	assert.Len(t, kp.Public, 32)
	assert.Len(t, kp.Private, 64)

	priv, err := LoadPrivateKey(fs, "/srv/keys/"+PrivateKeyFile)
	require.NoError(t, err)
	assert.Equal(t, kp.Private, priv)

	pub, err := LoadPublicKey(fs, "/srv/keys/"+PublicKeyFile)
	require.NoError(t, err)
	assert.Equal(t, kp.Public, pub)

	entries, err := afero.ReadDir(fs, "/srv/keys")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{PrivateKeyFile, PublicKeyFile}, names, "no temp or lock files may remain")

	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	token := signTest(t, testPayload(issued), priv)
	assert.Equal(t, StatusValid, Verify(token, pub, issued, "").Status())
}

func TestKeyManager_RefusesOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	km := NewKeyManager(fs)

	first, err := km.Generate("keys")
	require.NoError(t, err)

	_, err = km.Generate("keys")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrKeysExist)
	assert.ErrorIs(t, err, ErrIO)

	pub, err := LoadPublicKey(fs, filepath.Join("keys", PublicKeyFile))
	require.NoError(t, err)
	assert.Equal(t, first.Public, pub, "existing key must be untouched")
}

func TestKeyManager_RefusesWhenOnlyOneKeyExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join("keys", PublicKeyFile), []byte("old"), 0o644))

	_, err := NewKeyManager(fs).Generate("keys")
	assert.ErrorIs(t, err, ErrKeysExist)

	exists, err := afero.Exists(fs, filepath.Join("keys", PrivateKeyFile))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestKeyManager_HeldLock(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("keys", 0o700))
	require.NoError(t, afero.WriteFile(fs, filepath.Join("keys", keygenLockFile), nil, 0o600))

	_, err := NewKeyManager(fs).Generate("keys")
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorContains(t, err, "in progress")
	assert.ErrorContains(t, err, "remove "+filepath.Join("keys", keygenLockFile))
}

func TestKeyManager_Concurrent(t *testing.T) {
	fs := afero.NewMemMapFs()
	km := NewKeyManager(fs)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = km.Generate("keys")
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrKeysExist)
	}
	assert.Equal(t, 1, succeeded)
}

// renameFailFs fails renames onto the public key file.
type renameFailFs struct {
	afero.Fs
}

func (f renameFailFs) Rename(oldname, newname string) error {
	if filepath.Base(newname) == PublicKeyFile {
		return errors.New("disk full")
	}
	return f.Fs.Rename(oldname, newname)
}

func TestKeyManager_RollsBackPartialWrite(t *testing.T) {
	mem := afero.NewMemMapFs()
	_, err := NewKeyManager(renameFailFs{mem}).Generate("keys")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorContains(t, err, "disk full")

	entries, err := afero.ReadDir(mem, "keys")
	require.NoError(t, err)
	assert.Empty(t, entries, "a failed generation must leave no key material behind")
}

func TestKeyManager_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permissions")
	}
	dir := filepath.Join(t.TempDir(), "keys")
	_, err := NewKeyManager(afero.NewOsFs()).Generate(dir)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, PrivateKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(dir, PublicKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	info, err = os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestLoadKeys_Base64(t *testing.T) {
	fs := afero.NewMemMapFs()
	kp := testKeyPair(t)
	require.NoError(t, afero.WriteFile(fs, "pub.b64", []byte(base64.StdEncoding.EncodeToString(kp.Public)+"\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "priv.b64", []byte(base64.StdEncoding.EncodeToString(kp.Private)), 0o600))

	pub, err := LoadPublicKey(fs, "pub.b64")
	require.NoError(t, err)
	assert.Equal(t, kp.Public, pub)

	priv, err := LoadPrivateKey(fs, "priv.b64")
	require.NoError(t, err)
	assert.Equal(t, kp.Private, priv)
}

func TestLoadKeys_Invalid(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "short.key", []byte("not a key"), 0o644))

	_, err := LoadPublicKey(fs, "short.key")
	assert.ErrorIs(t, err, ErrIO)

	_, err = LoadPrivateKey(fs, "missing.key")
	assert.ErrorIs(t, err, ErrIO)
}

func TestParsePublicKey(t *testing.T) {
	kp := testKeyPair(t)
	pub, err := ParsePublicKey(" " + base64.StdEncoding.EncodeToString(kp.Public) + "\n")
	require.NoError(t, err)
	assert.Equal(t, kp.Public, pub)

	_, err = ParsePublicKey("!!!")
	assert.ErrorIs(t, err, ErrPublicKeyInvalid)

	_, err = ParsePublicKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrPublicKeyInvalid)
}
