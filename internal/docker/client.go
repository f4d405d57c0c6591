// Package docker wraps just enough of the Docker Engine API — over its Unix
// socket, with no SDK dependency — to restart an unhealthy container, which
// is all the leader-only monitoring loop in internal/monitor needs.
package docker

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	dockerSocket = "/var/run/docker.sock"
	dockerAPI    = "http://localhost"
	timeout      = 10 * time.Second
)

// Client wraps Docker socket connection for container management.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new Docker client via Unix socket, verifying the
// daemon is reachable before returning.
func NewClient() (*Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return net.DialTimeout("unix", dockerSocket, timeout)
			},
		},
		Timeout: timeout,
	}

	resp, err := httpClient.Get(dockerAPI + "/v1.40/_ping")
	if err != nil {
		return nil, errors.Wrapf(err, "docker: connecting to daemon via socket %s", dockerSocket)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("docker: daemon returned status %d on ping", resp.StatusCode)
	}

	log.Info("docker: connected to daemon via unix socket")
	return &Client{httpClient: httpClient}, nil
}

// RestartContainer restarts a container by its name or ID.
func (c *Client) RestartContainer(containerNameOrID string) error {
	log.WithField("container", containerNameOrID).Info("docker: restarting container")

	url := dockerAPI + "/v1.40/containers/" + containerNameOrID + "/restart"
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return errors.Wrapf(err, "docker: building restart request for %s", containerNameOrID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "docker: restarting container %s", containerNameOrID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return errors.Errorf("docker: API returned status %d restarting %s", resp.StatusCode, containerNameOrID)
	}

	log.WithField("container", containerNameOrID).Info("docker: container restarted")
	return nil
}

// Close releases idle connections held by the underlying HTTP client.
func (c *Client) Close() error {
	if c.httpClient != nil {
		log.Debug("docker: closing client")
		c.httpClient.CloseIdleConnections()
	}
	return nil
}
