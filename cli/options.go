// Package cli holds what the commtest binaries share: flag definitions, the
// defaults < config file < environment < flags layering and the observability wiring.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/celerway/commtest/config"
	"github.com/celerway/commtest/log"
	"github.com/celerway/commtest/rmw"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	// registered implementations
	_ "github.com/celerway/commtest/rmw/gossip"
	_ "github.com/celerway/commtest/rmw/kafka"
	_ "github.com/celerway/commtest/rmw/memory"
	_ "github.com/celerway/commtest/rmw/mqtt"
)

type Options struct {
	ConfigFile     string
	EnvFile        string
	LogLevel       string
	Implementation string
	Cycles         int
	SpinTimeout    time.Duration
	PublishPeriod  time.Duration
	HealthPort     int
	Reliability    string
	Durability     string
	Depth          int

	MqttBroker   string
	MqttPort     int
	MqttNoTls    bool
	RootCA       string
	ClientCert   string
	ClientKey    string
	MqttClientId string

	KafkaBrokers []string

	GossipListen    []string
	GossipBootstrap []string
	GossipNoMDNS    bool
}

// AddFlags registers the flags every binary understands.
func AddFlags(cmd *cobra.Command, o *Options) {
	f := cmd.Flags()
	f.StringVar(&o.ConfigFile, "config", "", "path to a YAML config file")
	f.StringVar(&o.EnvFile, "env-file", ".env", "dotenv file to load if present")
	f.StringVar(&o.LogLevel, "loglevel", "", "log level (trace|debug|info|warn|error)")
	f.StringVarP(&o.Implementation, "rmw_implementation", "r", rmw.Implementations()[0],
		fmt.Sprintf("rmw implementation identifier %v", rmw.Implementations()))
	f.IntVarP(&o.Cycles, "number_of_cycles", "n", 10, "number of cycles")
	f.DurationVar(&o.SpinTimeout, "spin-timeout", time.Second, "how long one spin waits for a message")
	f.DurationVar(&o.PublishPeriod, "publish-period", time.Second, "pause between publish cycles")
	f.IntVar(&o.HealthPort, "health-port", 0, "port for /metrics and /healthz (0 disables)")
	f.StringVar(&o.Reliability, "reliability", "reliable", "qos reliability (reliable|best_effort)")
	f.StringVar(&o.Durability, "durability", "volatile", "qos durability (volatile|transient_local)")
	f.IntVar(&o.Depth, "depth", 10, "qos history depth")

	f.StringVar(&o.MqttBroker, "mqtt-broker", "localhost", "MQTT broker host")
	f.IntVar(&o.MqttPort, "mqtt-port", 1883, "MQTT broker port")
	f.BoolVar(&o.MqttNoTls, "mqtt-no-tls", true, "disable TLS towards the MQTT broker")
	f.StringVar(&o.RootCA, "ca", "", "path to root CA certificate (pubkey)")
	f.StringVar(&o.ClientCert, "client-cert", "", "path to client cert (pubkey)")
	f.StringVar(&o.ClientKey, "client-key", "", "path to client key (privkey)")
	f.StringVar(&o.MqttClientId, "mqtt-client-id", "", "MQTT client id (generated when empty)")

	f.StringSliceVar(&o.KafkaBrokers, "kafka-brokers", []string{"localhost:9092"}, "Kafka bootstrap brokers")

	f.StringSliceVar(&o.GossipListen, "gossip-listen", []string{"/ip4/0.0.0.0/tcp/0"}, "libp2p listen multiaddrs")
	f.StringSliceVar(&o.GossipBootstrap, "gossip-bootstrap", nil, "libp2p bootstrap peers")
	f.BoolVar(&o.GossipNoMDNS, "gossip-no-mdns", false, "disable mDNS peer discovery")
}

// Params layers defaults, the config file, the environment and the flags the user set.
func (o *Options) Params(cmd *cobra.Command) (config.Params, error) {
	if o.EnvFile != "" {
		if err := godotenv.Load(o.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Params{}, fmt.Errorf("loading %s: %w", o.EnvFile, err)
		}
	}
	p, err := config.Load(o.ConfigFile)
	if err != nil {
		return p, err
	}
	if err := p.ApplyEnv(); err != nil {
		return p, err
	}
	o.apply(cmd, &p)
	if p.Implementation == "" {
		p.Implementation = rmw.Implementations()[0]
	}
	if !validImplementation(p.Implementation) {
		return p, fmt.Errorf("%w: '%s' (choose from %v)", rmw.ErrUnknownImplementation,
			p.Implementation, rmw.Implementations())
	}
	if p.LogLevel != "" {
		if _, err := log.ParseLevel(p.LogLevel); err != nil {
			return p, err
		}
	}
	return p, p.Validate()
}

func (o *Options) apply(cmd *cobra.Command, p *config.Params) {
	changed := cmd.Flags().Changed
	if changed("loglevel") {
		p.LogLevel = o.LogLevel
	}
	if changed("rmw_implementation") {
		p.Implementation = o.Implementation
	}
	if changed("number_of_cycles") {
		p.Cycles = o.Cycles
	}
	if changed("spin-timeout") {
		p.SpinTimeout = o.SpinTimeout
	}
	if changed("publish-period") {
		p.PublishPeriod = o.PublishPeriod
	}
	if changed("health-port") {
		p.HealthPort = o.HealthPort
	}
	if changed("reliability") {
		p.QoS.Reliability = o.Reliability
	}
	if changed("durability") {
		p.QoS.Durability = o.Durability
	}
	if changed("depth") {
		p.QoS.Depth = o.Depth
	}
	if changed("mqtt-broker") {
		p.MQTT.Broker = o.MqttBroker
	}
	if changed("mqtt-port") {
		p.MQTT.Port = o.MqttPort
	}
	if changed("mqtt-no-tls") {
		p.MQTT.Tls = !o.MqttNoTls // Notice the logical flip.
	}
	if changed("ca") {
		p.MQTT.TlsRootCrtFile = o.RootCA
	}
	if changed("client-cert") {
		p.MQTT.ClientCertFile = o.ClientCert
	}
	if changed("client-key") {
		p.MQTT.ClientKeyFile = o.ClientKey
	}
	if changed("mqtt-client-id") {
		p.MQTT.ClientId = o.MqttClientId
	}
	if changed("kafka-brokers") {
		p.Kafka.Brokers = o.KafkaBrokers
	}
	if changed("gossip-listen") {
		p.Gossip.ListenAddrs = o.GossipListen
	}
	if changed("gossip-bootstrap") {
		p.Gossip.Bootstrap = o.GossipBootstrap
	}
	if changed("gossip-no-mdns") {
		p.Gossip.EnableMDNS = !o.GossipNoMDNS
	}
}

func validImplementation(id string) bool {
	for _, known := range rmw.Implementations() {
		if known == id {
			return true
		}
	}
	return false
}
