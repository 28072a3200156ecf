package bundle

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

const signaturePrefix = "sshsig-v1"

var (
	// ErrUnsigned is returned when verifying a pack without a signature.
	ErrUnsigned = errors.New("pack is not signed")
	// ErrBadSignature is returned when a signature does not verify.
	ErrBadSignature = errors.New("signature verification failed")
)

// Signer signs a pack checksum and returns the encoded signature.
type Signer func(payload []byte) (string, error)

// NewSSHSigner loads an SSH private key and returns a Signer for it, along
// with the resolved key path. An empty path picks the first default key in
// ~/.ssh.
func NewSSHSigner(keyPath string) (Signer, string, error) {
	resolvedPath, err := resolveSigningKeyPath(keyPath)
	if err != nil {
		return nil, "", err
	}

	raw, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, "", fmt.Errorf("read signing key %q: %w", resolvedPath, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, "", fmt.Errorf("parse signing key %q: %w", resolvedPath, err)
	}
	return SignWith(signer), resolvedPath, nil
}

// SignWith returns a Signer backed by an ssh.Signer.
func SignWith(signer ssh.Signer) Signer {
	pubB64 := base64.StdEncoding.EncodeToString(signer.PublicKey().Marshal())
	return func(payload []byte) (string, error) {
		sig, err := signer.Sign(rand.Reader, payload)
		if err != nil {
			return "", err
		}
		sigB64 := base64.StdEncoding.EncodeToString(sig.Blob)
		return fmt.Sprintf("%s:%s:%s:%s", signaturePrefix, sig.Format, pubB64, sigB64), nil
	}
}

// VerifySSH checks the signature trailer of p against its checksum. A
// non-nil trusted key must match the key embedded in the signature.
func VerifySSH(p *Pack, trusted ssh.PublicKey) (ssh.PublicKey, error) {
	if p.Signature == "" {
		return nil, ErrUnsigned
	}
	parts := strings.Split(p.Signature, ":")
	if len(parts) != 4 || parts[0] != signaturePrefix {
		return nil, fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}
	pubRaw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrBadSignature, err)
	}
	pub, err := ssh.ParsePublicKey(pubRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrBadSignature, err)
	}
	if trusted != nil && !bytes.Equal(trusted.Marshal(), pub.Marshal()) {
		return nil, fmt.Errorf("%w: signed by %s, want %s", ErrBadSignature,
			ssh.FingerprintSHA256(pub), ssh.FingerprintSHA256(trusted))
	}
	blob, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrBadSignature, err)
	}
	sum, err := hex.DecodeString(string(p.Checksum))
	if err != nil {
		return nil, fmt.Errorf("%w: checksum: %v", ErrBadSignature, err)
	}
	if err := pub.Verify(sum, &ssh.Signature{Format: parts[1], Blob: blob}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return pub, nil
}

// LoadAuthorizedKey reads one public key in authorized_keys format.
func LoadAuthorizedKey(path string) (ssh.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key %q: %w", path, err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse public key %q: %w", path, err)
	}
	return pub, nil
}

func resolveSigningKeyPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		return expandUserPath(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	candidates := []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
	for _, candidate := range candidates {
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no default SSH private key found in ~/.ssh (id_ed25519, id_ecdsa, id_rsa)")
}

func expandUserPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
