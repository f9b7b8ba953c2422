package identity

import (
	"fmt"
	"strings"
)

// Name is an X.500-style distinguished name, such as
// "CN=Bank A,O=Bank A,L=London,C=GB".
type Name string

func (n Name) attributes() []string {
	parts := strings.Split(string(n), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Attribute returns the value of the first attribute named key, matched case
// insensitively.
func (n Name) Attribute(key string) (string, bool) {
	for _, a := range n.attributes() {
		k, v, ok := strings.Cut(a, "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), key) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// CommonName returns the CN attribute, or the whole name when it has none.
func (n Name) CommonName() string {
	if cn, ok := n.Attribute("CN"); ok {
		return cn
	}
	return string(n)
}

// AppendToCommonName returns n with suffix appended to its common name.
func (n Name) AppendToCommonName(suffix string) Name {
	attrs := n.attributes()
	for i, a := range attrs {
		k, v, ok := strings.Cut(a, "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), "CN") {
			attrs[i] = fmt.Sprintf("CN=%s%s", strings.TrimSpace(v), suffix)
			return Name(strings.Join(attrs, ","))
		}
	}
	return Name(string(n) + suffix)
}

// DevName returns the name used for development nodes with common name cn.
func DevName(cn string) Name {
	return Name(fmt.Sprintf("CN=%s,O=%s,L=London,C=GB", cn, cn))
}

// String implements fmt.Stringer.
func (n Name) String() string {
	return string(n)
}
