package identity

import (
	"bytes"
	"encoding/hex"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestKeyfile(t *testing.T) {
	dir := t.TempDir()

	keyfile := NewKeyfile(filepath.Join(dir, "priv_key"))

	// Try a read, should get nothing
	key, err := keyfile.ReadKey()
	if err == nil {
		t.Fatalf("ReadKey should generate an error")
	}
	if key != nil {
		t.Fatalf("key is not nil")
	}

	key, err = GenerateKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := keyfile.WriteKey(key); err != nil {
		t.Fatalf("err: %v", err)
	}

	nKey, err := keyfile.ReadKey()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !bytes.Equal(DumpPrivateKey(nKey), DumpPrivateKey(key)) {
		t.Fatalf("Keys do not match")
	}
}

func TestKeyfilePermissions(t *testing.T) {
	dir := t.TempDir()

	key, _ := GenerateKey()
	rawKey := hex.EncodeToString(DumpPrivateKey(key))

	shouldErr := []os.FileMode{0777, 0766, 0744, 0666, 0644, 0444}
	for i, fm := range shouldErr {
		p := filepath.Join(dir, "bad", string(rune('a'+i)))
		os.MkdirAll(filepath.Dir(p), 0700)
		if err := os.WriteFile(p, []byte(rawKey), fm); err != nil {
			t.Fatalf("err: %v", err)
		}
		os.Chmod(p, fm)

		if _, err := NewKeyfile(p).ReadKey(); err == nil {
			t.Fatalf("%o || key file should return permissions error", fm)
		}
	}

	shouldNotErr := []os.FileMode{0700, 0600, 0400}
	for i, fm := range shouldNotErr {
		p := filepath.Join(dir, "good", string(rune('a'+i)))
		os.MkdirAll(filepath.Dir(p), 0700)
		if err := os.WriteFile(p, []byte(rawKey), fm); err != nil {
			t.Fatalf("err: %v", err)
		}

		if _, err := NewKeyfile(p).ReadKey(); err != nil {
			t.Fatalf("%o || key file should not return error. Got %v", fm, err)
		}
	}
}

func TestDeterministicKey(t *testing.T) {
	a := DeterministicKey("Bank A")
	b := DeterministicKey("Bank A")
	c := DeterministicKey("Bank B")

	if !bytes.Equal(DumpPrivateKey(a), DumpPrivateKey(b)) {
		t.Fatalf("same seed should produce the same key")
	}
	if bytes.Equal(DumpPrivateKey(a), DumpPrivateKey(c)) {
		t.Fatalf("different seeds should produce different keys")
	}

	pub := FromPublicKey(&a.PublicKey)
	parsed, err := pub.ToECDSA()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if parsed.X.Cmp(a.PublicKey.X) != 0 || parsed.Y.Cmp(a.PublicKey.Y) != 0 {
		t.Fatalf("public key did not survive compression")
	}
}

func TestName(t *testing.T) {
	n := Name("CN=Bank A,O=Bank A,L=London,C=GB")

	if cn := n.CommonName(); cn != "Bank A" {
		t.Fatalf("CommonName should be Bank A, not %s", cn)
	}

	appended := n.AppendToCommonName("-10002")
	if appended != "CN=Bank A-10002,O=Bank A,L=London,C=GB" {
		t.Fatalf("unexpected name %s", appended)
	}
	if appended.CommonName() != "Bank A-10002" {
		t.Fatalf("unexpected common name %s", appended.CommonName())
	}

	if o, _ := n.Attribute("o"); o != "Bank A" {
		t.Fatalf("Attribute O should be Bank A, not %s", o)
	}

	bare := Name("Bank B")
	if bare.CommonName() != "Bank B" {
		t.Fatalf("a name without CN is its own common name")
	}
	if bare.AppendToCommonName("1") != "Bank B1" {
		t.Fatalf("unexpected name %s", bare.AppendToCommonName("1"))
	}

	if DevName("Dev").CommonName() != "Dev" {
		t.Fatalf("DevName should keep the common name")
	}
}

func TestServiceInfo(t *testing.T) {
	cases := []struct {
		in   string
		info ServiceInfo
	}{
		{"ledger.notary.simple", ServiceInfo{Type: SimpleNotary}},
		{"ledger.notary.validating.raft|CN=Raft,O=R3,L=Zurich,C=CH", ServiceInfo{Type: RaftNotary, Name: "CN=Raft,O=R3,L=Zurich,C=CH"}},
	}

	for _, c := range cases {
		info, err := ParseServiceInfo(c.in)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if info != c.info {
			t.Fatalf("expected %v, got %v", c.info, info)
		}
		if info.String() != c.in {
			t.Fatalf("expected %s, got %s", c.in, info.String())
		}
		if !info.IsNotary() {
			t.Fatalf("%s should be a notary", c.in)
		}
	}

	if _, err := ParseServiceInfo(" "); err == nil {
		t.Fatalf("empty service info should not parse")
	}
}

func TestGenerateServiceIdentity(t *testing.T) {
	base := t.TempDir()
	dirs := []string{
		filepath.Join(base, "Notary0"),
		filepath.Join(base, "Notary1"),
		filepath.Join(base, "Notary2"),
	}

	si, err := GenerateServiceIdentity(dirs, RaftNotary, "CN=Raft,O=R3,L=Zurich,C=CH")
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	var first []byte
	for _, dir := range dirs {
		loaded, key, err := LoadServiceIdentity(dir)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if !reflect.DeepEqual(loaded, si) {
			t.Fatalf("expected %#v, got %#v", si, loaded)
		}
		if first == nil {
			first = DumpPrivateKey(key)
		} else if !bytes.Equal(first, DumpPrivateKey(key)) {
			t.Fatalf("members should share a single key")
		}
	}
}

func TestRandomFixtureSkipsServiceIdentities(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	seen := map[Name]bool{}
	for i := 0; i < 200; i++ {
		seen[RandomFixture(r).Name] = true
	}

	for _, f := range []Fixture{DummyNotary, DummyMap, DummyCA, Regulator} {
		if seen[f.Name] {
			t.Fatalf("%s must not be picked", f.Name)
		}
	}
	if len(seen) != len(NodeNameFixtures) {
		t.Fatalf("expected every node fixture to be picked, got %v", seen)
	}
}
