package qmslicense

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Key file names written by KeyManager.Generate.
const (
	PrivateKeyFile = "private.key"
	PublicKeyFile  = "public.key"
	keygenLockFile = ".keygen.lock"
)

// KeyManager generates key pairs and persists them as raw key files.
type KeyManager struct {
	fs     afero.Fs
	scheme SignatureScheme
	mu     sync.Mutex
}

// KeyManagerOption configures a KeyManager.
type KeyManagerOption func(*KeyManager)

// WithKeyScheme sets the signature scheme used to generate keys.
func WithKeyScheme(s SignatureScheme) KeyManagerOption {
	return func(km *KeyManager) {
		km.scheme = s
	}
}

// NewKeyManager creates a KeyManager writing to fs.
func NewKeyManager(fs afero.Fs, opts ...KeyManagerOption) *KeyManager {
	km := &KeyManager{fs: fs, scheme: DefaultScheme}
	for _, opt := range opts {
		opt(km)
	}
	return km
}

// Generate creates a key pair and writes private.key (0600) and public.key
// (0644) into dir. It refuses to replace existing key files, since every
// token issued under the old public key would stop verifying.
//
// Both keys are written to temporary files and renamed into place. If the
// second rename fails the first is removed, so dir never holds a mismatched
// pair written by this call.
func (km *KeyManager) Generate(dir string) (KeyPair, error) {
	km.mu.Lock()
	defer km.mu.Unlock()

	if err := km.fs.MkdirAll(dir, 0o700); err != nil {
		return KeyPair{}, &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	unlock, err := km.lock(dir)
	if err != nil {
		return KeyPair{}, err
	}
	defer unlock()

	privPath := filepath.Join(dir, PrivateKeyFile)
	pubPath := filepath.Join(dir, PublicKeyFile)
	for _, p := range []string{privPath, pubPath} {
		exists, err := afero.Exists(km.fs, p)
		if err != nil {
			return KeyPair{}, &IOError{Op: "stat", Path: p, Err: err}
		}
		if exists {
			return KeyPair{}, &IOError{Op: "create", Path: p, Err: ErrKeysExist}
		}
	}

	kp, err := km.scheme.GenerateKeyPair()
	if err != nil {
		return KeyPair{}, err
	}

	privTmp, err := km.writeTemp(dir, PrivateKeyFile, kp.Private, 0o600)
	if err != nil {
		return KeyPair{}, err
	}
	defer km.fs.Remove(privTmp)

	pubTmp, err := km.writeTemp(dir, PublicKeyFile, kp.Public, 0o644)
	if err != nil {
		return KeyPair{}, err
	}
	defer km.fs.Remove(pubTmp)

	if err := km.fs.Rename(privTmp, privPath); err != nil {
		return KeyPair{}, &IOError{Op: "rename", Path: privPath, Err: err}
	}
	if err := km.fs.Rename(pubTmp, pubPath); err != nil {
		km.fs.Remove(privPath)
		return KeyPair{}, &IOError{Op: "rename", Path: pubPath, Err: err}
	}
	return kp, nil
}

// lock takes an exclusive lock file in dir so that generators in other
// processes cannot interleave their writes with ours.
func (km *KeyManager) lock(dir string) (func(), error) {
	path := filepath.Join(dir, keygenLockFile)
	f, err := km.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) || errors.Is(err, afero.ErrFileExists) {
			return nil, &IOError{Op: "lock", Path: path,
				Err: fmt.Errorf("another key generation is in progress; if none is running, remove %s", path)}
		}
		return nil, &IOError{Op: "lock", Path: path, Err: err}
	}
	f.Close()
	return func() { km.fs.Remove(path) }, nil
}

func (km *KeyManager) writeTemp(dir, name string, data []byte, perm os.FileMode) (string, error) {
	f, err := afero.TempFile(km.fs, dir, "."+name+".tmp-")
	if err != nil {
		return "", &IOError{Op: "create", Path: dir, Err: err}
	}
	path := f.Name()

	fail := func(op string, err error) (string, error) {
		f.Close()
		km.fs.Remove(path)
		return "", &IOError{Op: op, Path: path, Err: err}
	}
	if err := km.fs.Chmod(path, perm); err != nil {
		return fail("chmod", err)
	}
	if _, err := f.Write(data); err != nil {
		return fail("write", err)
	}
	if err := f.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := f.Close(); err != nil {
		km.fs.Remove(path)
		return "", &IOError{Op: "close", Path: path, Err: err}
	}
	return path, nil
}

// LoadPrivateKey reads a private key file written by Generate. Base64 text
// is accepted as well as raw bytes.
func LoadPrivateKey(fs afero.Fs, path string) (PrivateKey, error) {
	data, err := readKeyFile(fs, path, ed25519.PrivateKeySize)
	if err != nil {
		return nil, err
	}
	return PrivateKey(data), nil
}

// LoadPublicKey reads a public key file written by Generate. Base64 text is
// accepted as well as raw bytes.
func LoadPublicKey(fs afero.Fs, path string) (PublicKey, error) {
	data, err := readKeyFile(fs, path, ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}
	return PublicKey(data), nil
}

// ParsePublicKey decodes a base64 public key, as distributed in environment
// variables.
func ParsePublicKey(s string) (PublicKey, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, &SignatureError{Cause: ErrPublicKeyInvalid, Reason: fmt.Sprintf("base64 decode: %v", err)}
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, &SignatureError{Cause: ErrPublicKeyInvalid, Reason: fmt.Sprintf("key length %d, expected %d", len(data), ed25519.PublicKeySize)}
	}
	return PublicKey(data), nil
}

func readKeyFile(fs afero.Fs, path string, size int) ([]byte, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	if len(data) == size {
		return data, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err == nil && len(decoded) == size {
		return decoded, nil
	}
	return nil, &IOError{Op: "read", Path: path,
		Err: fmt.Errorf("key file has %d bytes, expected %d raw bytes or base64 text", len(data), size)}
}
