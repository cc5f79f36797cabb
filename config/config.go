// Package config holds the run parameters shared by the commtest binaries.
// Values are layered: defaults, then an optional YAML file, then the environment.
// Command line flags are applied on top by the binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type MQTTParams struct {
	Broker         string `yaml:"broker"`
	Port           int    `yaml:"port"`
	Tls            bool   `yaml:"tls"`
	TlsRootCrtFile string `yaml:"root_ca"`
	ClientCertFile string `yaml:"client_cert"`
	ClientKeyFile  string `yaml:"client_key"`
	ClientId       string `yaml:"client_id"`
}

type KafkaParams struct {
	Brokers       []string      `yaml:"brokers"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Timeout       time.Duration `yaml:"timeout"`
}

type GossipParams struct {
	ListenAddrs     []string `yaml:"listen"`
	Bootstrap       []string `yaml:"bootstrap"`
	Rendezvous      string   `yaml:"rendezvous"`
	EnableMDNS      bool     `yaml:"mdns"`
	IdentityKeyFile string   `yaml:"identity_key_file"`
}

type QoSParams struct {
	Reliability string `yaml:"reliability"` // reliable | best_effort
	Durability  string `yaml:"durability"`  // volatile | transient_local
	Depth       int    `yaml:"depth"`
}

type Params struct {
	LogLevel       string        `yaml:"log_level"`
	Implementation string        `yaml:"rmw_implementation"`
	Cycles         int           `yaml:"number_of_cycles"`
	SpinTimeout    time.Duration `yaml:"spin_timeout"`
	PublishPeriod  time.Duration `yaml:"publish_period"`
	QueueSize      int           `yaml:"queue_size"`
	HealthPort     int           `yaml:"health_port"`
	QoS            QoSParams     `yaml:"qos"`
	MQTT           MQTTParams    `yaml:"mqtt"`
	Kafka          KafkaParams   `yaml:"kafka"`
	Gossip         GossipParams  `yaml:"gossip"`
}

func Default() Params {
	return Params{
		LogLevel:      "info",
		Cycles:        10,
		SpinTimeout:   time.Second,
		PublishPeriod: time.Second,
		QueueSize:     100,
		QoS: QoSParams{
			Reliability: "reliable",
			Durability:  "volatile",
			Depth:       10,
		},
		MQTT: MQTTParams{
			Broker: "localhost",
			Port:   1883,
		},
		Kafka: KafkaParams{
			Brokers:       []string{"localhost:9092"},
			RetryInterval: 2 * time.Second,
			Timeout:       10 * time.Second,
		},
		Gossip: GossipParams{
			ListenAddrs: []string{"/ip4/0.0.0.0/tcp/0"},
			Rendezvous:  "commtest",
			EnableMDNS:  true,
		},
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the defaults.
func Load(path string) (Params, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading config '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("parsing config '%s': %w", path, err)
	}
	return p, nil
}

// ApplyEnv overrides parameters with the environment variables that are set.
func (p *Params) ApplyEnv() error {
	var errs []error
	setStr(&p.LogLevel, "LOG_LEVEL")
	setStr(&p.Implementation, "RMW_IMPLEMENTATION")
	errs = append(errs, setInt(&p.Cycles, "NUMBER_OF_CYCLES"))
	errs = append(errs, setDuration(&p.SpinTimeout, "SPIN_TIMEOUT"))
	errs = append(errs, setDuration(&p.PublishPeriod, "PUBLISH_PERIOD"))
	errs = append(errs, setInt(&p.HealthPort, "HEALTH_PORT"))
	setStr(&p.QoS.Reliability, "QOS_RELIABILITY")
	setStr(&p.QoS.Durability, "QOS_DURABILITY")
	errs = append(errs, setInt(&p.QoS.Depth, "QOS_DEPTH"))

	setStr(&p.MQTT.Broker, "MQTT_BROKER")
	errs = append(errs, setInt(&p.MQTT.Port, "MQTT_PORT"))
	if val, ok := os.LookupEnv("MQTT_NO_TLS"); ok {
		p.MQTT.Tls = strings.ToUpper(val) != "TRUE" // Notice the logical flip.
	}
	setStr(&p.MQTT.TlsRootCrtFile, "ROOT_CA")
	setStr(&p.MQTT.ClientCertFile, "CLIENT_CERT")
	setStr(&p.MQTT.ClientKeyFile, "CLIENT_KEY")
	setStr(&p.MQTT.ClientId, "MQTT_CLIENT_ID")

	setList(&p.Kafka.Brokers, "KAFKA_BROKERS")
	setList(&p.Gossip.ListenAddrs, "GOSSIP_LISTEN")
	setList(&p.Gossip.Bootstrap, "GOSSIP_BOOTSTRAP")
	if val, ok := os.LookupEnv("GOSSIP_MDNS"); ok {
		p.Gossip.EnableMDNS = strings.ToUpper(val) == "TRUE"
	}
	return errors.Join(errs...)
}

// Validate checks the parameters that every binary depends on.
func (p Params) Validate() error {
	if p.Cycles <= 0 {
		return fmt.Errorf("number of cycles must be positive, got %d", p.Cycles)
	}
	if p.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", p.QueueSize)
	}
	switch p.QoS.Reliability {
	case "reliable", "best_effort":
	default:
		return fmt.Errorf("unknown reliability '%s'", p.QoS.Reliability)
	}
	switch p.QoS.Durability {
	case "volatile", "transient_local":
	default:
		return fmt.Errorf("unknown durability '%s'", p.QoS.Durability)
	}
	if p.MQTT.Tls && (p.MQTT.TlsRootCrtFile == "" || p.MQTT.ClientCertFile == "" || p.MQTT.ClientKeyFile == "") {
		return errors.New("mqtt tls requires root CA, client cert and client key")
	}
	return nil
}

func setStr(dst *string, env string) {
	if val, ok := os.LookupEnv(env); ok && val != "" {
		*dst = val
	}
}

func setInt(dst *int, env string) error {
	val, ok := os.LookupEnv(env)
	if !ok || val == "" {
		return nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("could not make sense of ENV{%s}: %s", env, val)
	}
	*dst = i
	return nil
}

func setDuration(dst *time.Duration, env string) error {
	val, ok := os.LookupEnv(env)
	if !ok || val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("could not make sense of ENV{%s}: %s", env, val)
	}
	*dst = d
	return nil
}

func setList(dst *[]string, env string) {
	val, ok := os.LookupEnv(env)
	if !ok || val == "" {
		return
	}
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*dst = out
}
