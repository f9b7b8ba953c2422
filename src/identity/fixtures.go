package identity

import (
	"crypto/ecdsa"
	"math/rand"
)

// Fixture is a well known test identity with a deterministic key.
type Fixture struct {
	Name Name
	Key  *ecdsa.PrivateKey
}

// Party returns the public side of the fixture.
func (f Fixture) Party() Party {
	return Party{Name: f.Name, OwningKey: FromPublicKey(&f.Key.PublicKey)}
}

func fixture(name Name) Fixture {
	return Fixture{Name: name, Key: DeterministicKey(string(name))}
}

// Test identities.
var (
	DummyNotary = fixture("CN=Notary Service,O=R3,OU=ledger,L=Zurich,C=CH")
	DummyMap    = fixture("CN=Network Map Service,O=R3,OU=ledger,L=Amsterdam,C=NL")
	DummyBankA  = fixture("CN=Bank A,O=Bank A,L=London,C=GB")
	DummyBankB  = fixture("CN=Bank B,O=Bank B,L=New York,C=US")
	DummyBankC  = fixture("CN=Bank C,O=Bank C,L=Tokyo,C=JP")
	Alice       = fixture("CN=Alice Corp,O=Alice Corp,L=Madrid,C=ES")
	Bob         = fixture("CN=Bob Plc,O=Bob Plc,L=Rome,C=IT")
	Charlie     = fixture("CN=Charlie Ltd,O=Charlie Ltd,L=Athens,C=GR")
	Regulator   = fixture("CN=Regulator A,OU=ledger,O=AMF,L=Paris,C=FR")
	DummyCA     = fixture("CN=Dummy CA,OU=ledger,O=R3 Ltd,L=London,C=GB")
)

// NodeNameFixtures are the identities names of ordinary nodes are drawn
// from. Service identities are left out.
var NodeNameFixtures = []Fixture{Alice, Bob, DummyBankA}

// RandomFixture picks one of NodeNameFixtures using r.
func RandomFixture(r *rand.Rand) Fixture {
	return NodeNameFixtures[r.Intn(len(NodeNameFixtures))]
}
