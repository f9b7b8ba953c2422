package identity

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ugorji/go/codec"
)

// Files holding the shared service identity inside a member's base directory.
const (
	ServiceIdentityFile = "service_identity.json"
	ServiceKeyFile      = "service_identity_key"
)

// ServiceIdentity is the identity shared by every member of a distributed
// service, such as a notary cluster.
type ServiceIdentity struct {
	ServiceID string `json:"serviceId"`
	Party     Party  `json:"party"`
}

// Marshal renders s as canonical JSON, so every member holds byte identical
// files.
func (s *ServiceIdentity) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(s); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal parses data produced by Marshal.
func (s *ServiceIdentity) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(s)
}

// GenerateServiceIdentity creates one key pair for the service and writes it,
// with the service's public identity, into each of dirs. It must run before
// any member starts.
func GenerateServiceIdentity(dirs []string, serviceID string, serviceName Name) (*ServiceIdentity, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	si := &ServiceIdentity{
		ServiceID: serviceID,
		Party:     Party{Name: serviceName, OwningKey: FromPublicKey(&key.PublicKey)},
	}

	data, err := si.Marshal()
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(dir, ServiceIdentityFile), data, 0644); err != nil {
			return nil, fmt.Errorf("writing service identity to %s: %w", dir, err)
		}
		if err := NewKeyfile(filepath.Join(dir, ServiceKeyFile)).WriteKey(key); err != nil {
			return nil, fmt.Errorf("writing service key to %s: %w", dir, err)
		}
	}

	return si, nil
}

// LoadServiceIdentity reads the service identity written into dir, along with
// its private key.
func LoadServiceIdentity(dir string) (*ServiceIdentity, *ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(filepath.Join(dir, ServiceIdentityFile))
	if err != nil {
		return nil, nil, err
	}

	si := new(ServiceIdentity)
	if err := si.Unmarshal(data); err != nil {
		return nil, nil, err
	}

	key, err := NewKeyfile(filepath.Join(dir, ServiceKeyFile)).ReadKey()
	if err != nil {
		return nil, nil, err
	}

	if !bytes.Equal(FromPublicKey(&key.PublicKey), si.Party.OwningKey) {
		return nil, nil, fmt.Errorf("service key in %s does not match the service identity", dir)
	}

	return si, key, nil
}
