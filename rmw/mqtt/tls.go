package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// NewTlsConfig builds a client config that trusts caFile and presents the client key pair.
func NewTlsConfig(caFile, clientCertFile, clientKeyFile string) (*tls.Config, error) {
	certpool := x509.NewCertPool()
	ca, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("reading root CA: %w", err)
	}
	if !certpool.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("no certificates found in %s", caFile)
	}
	clientKeyPair, err := tls.LoadX509KeyPair(clientCertFile, clientKeyFile)
	if err != nil {
		return nil, fmt.Errorf("tls.LoadX509KeyPair(%s,%s): %w", clientCertFile, clientKeyFile, err)
	}
	return &tls.Config{
		RootCAs:      certpool,
		ClientAuth:   tls.NoClientCert,
		Certificates: []tls.Certificate{clientKeyPair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
