package mqtt

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/celerway/commtest/config"
	"github.com/celerway/commtest/rmw"
	is2 "github.com/matryer/is"
)

func TestBrokerURL(t *testing.T) {
	is := is2.New(t)
	is.Equal(brokerURL(Params{Broker: "localhost", Port: 1883}), "tcp://localhost:1883")
	is.Equal(brokerURL(Params{Broker: "mqtt.example.com", Port: 8883, Tls: true}), "ssl://mqtt.example.com:8883")
}

func TestMqttQos(t *testing.T) {
	is := is2.New(t)
	is.Equal(mqttQos(rmw.DefaultQoS), byte(1))
	is.Equal(mqttQos(rmw.QoSProfile{Reliability: rmw.BestEffort}), byte(0))
}

func TestNew_GeneratesClientId(t *testing.T) {
	is := is2.New(t)
	a := New(Params{Broker: "localhost", Port: 1883}, nil).(*client)
	b := New(Params{Broker: "localhost", Port: 1883}, nil).(*client)
	is.True(strings.HasPrefix(a.clientId, "commtest-"))
	is.True(a.clientId != b.clientId)
	c := New(Params{Clientid: "fixed"}, nil).(*client)
	is.Equal(c.clientId, "fixed")
}

func TestNotInitialized(t *testing.T) {
	is := is2.New(t)
	rt := New(Params{Broker: "localhost", Port: 1883}, nil)
	defer rt.Shutdown()
	_, err := rt.Subscribe("t", rmw.DefaultQoS, func([]byte) error { return nil })
	is.True(err != nil)
	is.True(rt.Publish(context.Background(), "t", rmw.DefaultQoS, nil) != nil)
}

func TestNewTlsConfig(t *testing.T) {
	is := is2.New(t)
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir)
	cfg, err := NewTlsConfig(certFile, certFile, keyFile)
	is.NoErr(err)
	is.Equal(len(cfg.Certificates), 1)
	is.True(cfg.RootCAs != nil)

	_, err = NewTlsConfig(filepath.Join(dir, "missing.pem"), certFile, keyFile)
	is.True(err != nil)
	_, err = NewTlsConfig(keyFile, certFile, keyFile) // a key is not a CA
	is.True(err != nil)
}

func TestRegisteredWithBadTls(t *testing.T) {
	is := is2.New(t)
	p := config.Default()
	p.MQTT.Tls = true
	p.MQTT.TlsRootCrtFile = filepath.Join(t.TempDir(), "nope.pem")
	_, err := rmw.New(ID, p, nil)
	is.True(err != nil)
}

// TestBroker talks to a real broker. Set MQTT_TEST_BROKER=host:port to run it.
func TestBroker(t *testing.T) {
	addr := os.Getenv("MQTT_TEST_BROKER")
	if addr == "" {
		t.Skip("MQTT_TEST_BROKER not set")
	}
	is := is2.New(t)
	host, portStr, ok := strings.Cut(addr, ":")
	is.True(ok)
	port, err := strconv.Atoi(portStr)
	is.NoErr(err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rt := New(Params{Broker: host, Port: port, QueueSize: 10}, nil)
	is.NoErr(rt.Init(ctx))
	defer rt.Shutdown()
	var got []byte
	_, err = rt.Subscribe("commtest/unit", rmw.DefaultQoS, func(p []byte) error {
		got = p
		return nil
	})
	is.NoErr(err)
	is.NoErr(rt.Publish(ctx, "commtest/unit", rmw.DefaultQoS, []byte("ping")))
	is.NoErr(rt.SpinOnce(ctx, 5*time.Second))
	is.Equal(string(got), "ping")
}

func writeSelfSigned(t *testing.T, dir string) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "commtest"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDer, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDer}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}
