package protocol

import (
	masterminds "github.com/Masterminds/semver/v3"
)

const (
	// Version is the protocol version spoken by this module.
	Version = "1.0.0"
	// SupportedRange is the range of peer versions accepted in the optional
	// version field of a command envelope.
	SupportedRange = "^1.0.0"
)

var supported = mustConstraint(SupportedRange)

func mustConstraint(r string) *masterminds.Constraints {
	c, err := masterminds.NewConstraint(r)
	if err != nil {
		panic(err)
	}
	return c
}

// CheckVersion validates a peer's declared protocol version. An empty version
// is accepted: legacy peers never send one.
func CheckVersion(v string) error {
	if v == "" {
		return nil
	}
	parsed, err := masterminds.NewVersion(v)
	if err != nil {
		return ProtocolErrorf("invalid protocol version %q: %v", v, err)
	}
	if !supported.Check(parsed) {
		return ProtocolErrorf("unsupported protocol version %s (supported: %s)", parsed, SupportedRange)
	}
	return nil
}
