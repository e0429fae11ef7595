package transport

import (
	"context"
	"fmt"
	"net"

	utls "github.com/refraction-networking/utls"
)

// TLSProfile represents a client hello fingerprint
type TLSProfile struct {
	Name     string
	ClientID utls.ClientHelloID
}

var tlsProfiles = []TLSProfile{
	{Name: "Chrome_Auto", ClientID: utls.HelloChrome_Auto},
	{Name: "Firefox_Auto", ClientID: utls.HelloFirefox_Auto},
	{Name: "Golang", ClientID: utls.HelloGolang},
}

// TLSFingerprinter wraps connections in TLS using a fixed client hello
type TLSFingerprinter struct {
	profile TLSProfile
}

// NewTLSFingerprinter selects a profile by name. An empty name picks the
// first profile.
func NewTLSFingerprinter(name string) (*TLSFingerprinter, error) {
	if name == "" {
		return &TLSFingerprinter{profile: tlsProfiles[0]}, nil
	}
	for _, p := range tlsProfiles {
		if p.Name == name {
			return &TLSFingerprinter{profile: p}, nil
		}
	}
	return nil, fmt.Errorf("unknown TLS profile %q", name)
}

// Profile returns the selected profile
func (tf *TLSFingerprinter) Profile() TLSProfile {
	return tf.profile
}

// Client performs the TLS handshake over conn
func (tf *TLSFingerprinter) Client(ctx context.Context, conn net.Conn, serverName string) (net.Conn, error) {
	uconn := utls.UClient(conn, &utls.Config{
		ServerName: serverName,
		MinVersion: utls.VersionTLS12,
	}, tf.profile.ClientID)

	if err := uconn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("TLS handshake with %s failed: %w", serverName, err)
	}
	return uconn, nil
}
