package identity

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec"
)

// GenerateKey creates a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	key, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, err
	}
	return key.ToECDSA(), nil
}

// DeterministicKey derives a private key from seed. It is only meant for test
// fixtures, where every run must produce the same identities.
func DeterministicKey(seed string) *ecdsa.PrivateKey {
	d := sha256.Sum256([]byte(seed))
	key, _ := btcec.PrivKeyFromBytes(btcec.S256(), d[:])
	return key.ToECDSA()
}

// DumpPrivateKey exports the D value of priv as a 32 byte big-endian dump.
func DumpPrivateKey(priv *ecdsa.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return (*btcec.PrivateKey)(priv).Serialize()
}

// ParsePrivateKey rebuilds a private key from a dump made by DumpPrivateKey.
func ParsePrivateKey(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid length, need %d bytes", btcec.PrivKeyBytesLen)
	}
	key, _ := btcec.PrivKeyFromBytes(btcec.S256(), d)
	if key.D.Sign() <= 0 || key.D.Cmp(btcec.S256().N) >= 0 {
		return nil, fmt.Errorf("invalid private key")
	}
	return key.ToECDSA(), nil
}

// PublicKey is the compressed form of a secp256k1 public key.
type PublicKey []byte

// FromPublicKey compresses pub.
func FromPublicKey(pub *ecdsa.PublicKey) PublicKey {
	if pub == nil || pub.X == nil {
		return nil
	}
	return (*btcec.PublicKey)(pub).SerializeCompressed()
}

// ToECDSA parses k back into a usable public key.
func (k PublicKey) ToECDSA() (*ecdsa.PublicKey, error) {
	pub, err := btcec.ParsePubKey(k, btcec.S256())
	if err != nil {
		return nil, err
	}
	return pub.ToECDSA(), nil
}

// String returns the hex form of k.
func (k PublicKey) String() string {
	return hex.EncodeToString(k)
}

// Keyfile stores a private key as a raw hex dump, readable by the owner only.
type Keyfile struct {
	l    sync.Mutex
	path string
}

// NewKeyfile returns a Keyfile backed by path.
func NewKeyfile(path string) *Keyfile {
	return &Keyfile{path: path}
}

// checkFileInfo verifies that the file exists and has user permissions only.
func (k *Keyfile) checkFileInfo() error {
	info, err := os.Stat(k.path)
	if err != nil {
		return err
	}

	perm := info.Mode().Perm()
	if perm&0077 != 0 {
		return fmt.Errorf("key file permissions should exclude 'groups' and 'others'. Got %o", perm)
	}

	return nil
}

// ReadKey reads the key written by WriteKey.
func (k *Keyfile) ReadKey() (*ecdsa.PrivateKey, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.checkFileInfo(); err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(k.path)
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, err
	}

	return ParsePrivateKey(raw)
}

// WriteKey writes key, creating parent directories as needed.
func (k *Keyfile) WriteKey(key *ecdsa.PrivateKey) error {
	k.l.Lock()
	defer k.l.Unlock()

	if err := os.MkdirAll(filepath.Dir(k.path), 0700); err != nil {
		return err
	}

	return os.WriteFile(k.path, []byte(hex.EncodeToString(DumpPrivateKey(key))), 0600)
}
