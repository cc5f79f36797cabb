// Package integration runs the communication tests against real brokers started in
// docker containers.
package integration

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/celerway/commtest/log"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	MosquittoImage = "eclipse-mosquitto:1.6"
	mqttPort       = nat.Port("1883/tcp")
)

// Broker is a containerized MQTT broker.
type Broker struct {
	cli    *client.Client
	id     string
	Host   string
	Port   int
	logger *log.Logger
}

// StartMosquitto pulls and starts a mosquitto container with its MQTT port published on a
// random local port, then waits until the port accepts connections.
func StartMosquitto(ctx context.Context, logger *log.Logger) (*Broker, error) {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithPrefix("docker")
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	logger.Infof("Pulling %s", MosquittoImage)
	rc, err := cli.ImagePull(ctx, MosquittoImage, types.ImagePullOptions{})
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("pulling %s: %w", MosquittoImage, err)
	}
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()

	created, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image:        MosquittoImage,
			ExposedPorts: nat.PortSet{mqttPort: struct{}{}},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{mqttPort: []nat.PortBinding{{HostIP: "127.0.0.1"}}},
			AutoRemove:   true,
		}, nil, nil, "")
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("creating container: %w", err)
	}
	b := &Broker{cli: cli, id: created.ID, Host: "127.0.0.1", logger: logger}
	if err := cli.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
		b.Stop()
		return nil, fmt.Errorf("starting container: %w", err)
	}
	info, err := cli.ContainerInspect(ctx, created.ID)
	if err != nil {
		b.Stop()
		return nil, fmt.Errorf("inspecting container: %w", err)
	}
	bindings := info.NetworkSettings.Ports[mqttPort]
	if len(bindings) == 0 {
		b.Stop()
		return nil, fmt.Errorf("container %s has no binding for %s", created.ID[:12], mqttPort)
	}
	b.Port, err = strconv.Atoi(bindings[0].HostPort)
	if err != nil {
		b.Stop()
		return nil, fmt.Errorf("host port %q: %w", bindings[0].HostPort, err)
	}
	if err := waitForBroker(ctx, b.Addr()); err != nil {
		b.Stop()
		return nil, err
	}
	logger.Infof("Mosquitto %s listening on %s", created.ID[:12], b.Addr())
	return b, nil
}

func (b *Broker) Addr() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// Stop stops the container. It is removed by docker once stopped.
func (b *Broker) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	timeout := 2 * time.Second
	if err := b.cli.ContainerStop(ctx, b.id, &timeout); err != nil {
		b.logger.Warnf("stopping container %s: %s", b.id, err)
		_ = b.cli.ContainerRemove(ctx, b.id, types.ContainerRemoveOptions{Force: true})
	}
	_ = b.cli.Close()
}

// waitForBroker connects with a throwaway MQTT client until the broker answers. The
// published port accepts TCP connections before mosquitto itself is up.
func waitForBroker(ctx context.Context, addr string) error {
	opts := paho.NewClientOptions()
	opts.AddBroker("tcp://" + addr)
	opts.SetClientID("commtest-probe")
	opts.SetConnectTimeout(time.Second)
	for {
		c := paho.NewClient(opts)
		token := c.Connect()
		if token.WaitTimeout(2*time.Second) && token.Error() == nil {
			c.Disconnect(50)
			return nil
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return fmt.Errorf("waiting for broker on %s: %w", addr, ctx.Err())
		}
	}
}
