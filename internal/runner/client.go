package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/namespaces"
	"github.com/rs/zerolog/log"
)

const dialTimeout = 5 * time.Second

// Client owns the containerd connection used to run tool containers.
// All operations go through the configured namespace.
type Client struct {
	cd        *containerd.Client
	namespace string

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// NewClient dials containerd and fails fast if the daemon doesn't answer.
func NewClient(ctx context.Context, socket, namespace string) (*Client, error) {
	cd, err := containerd.New(socket,
		containerd.WithDefaultNamespace(namespace),
		containerd.WithTimeout(dialTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing containerd at %s: %w", socket, err)
	}
	if _, err := cd.Version(ctx); err != nil {
		_ = cd.Close()
		return nil, fmt.Errorf("containerd not responding: %w", err)
	}

	log.Info().Str("socket", socket).Str("namespace", namespace).Msg("containerd connected")

	return &Client{cd: cd, namespace: namespace, closed: make(chan struct{})}, nil
}

// Raw exposes the underlying containerd client for container lifecycle calls.
func (c *Client) Raw() *containerd.Client { return c.cd }

// WithNamespace stamps the client's namespace onto a context.
func (c *Client) WithNamespace(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, c.namespace)
}

// Healthy reports whether the daemon still answers version requests.
func (c *Client) Healthy(ctx context.Context) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	_, err := c.cd.Version(ctx)
	return err == nil
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.cd.Close()
	})
	return c.closeErr
}

// PullImage resolves ref locally first and pulls only on a miss.
func (c *Client) PullImage(ctx context.Context, ref string) (containerd.Image, error) {
	ctx = c.WithNamespace(ctx)

	if image, err := c.cd.GetImage(ctx, ref); err == nil {
		return image, nil
	}

	log.Info().Str("ref", ref).Msg("pulling tool image")
	image, err := c.cd.Pull(ctx, ref, containerd.WithPullUnpack)
	if err != nil {
		return nil, fmt.Errorf("pulling image %s: %w", ref, err)
	}
	return image, nil
}

// PrefetchImages warms the image store so the first run of each tool skips
// the pull. Individual failures are logged and skipped; the run path pulls
// on demand anyway.
func (c *Client) PrefetchImages(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if _, err := c.PullImage(ctx, ref); err != nil {
			log.Warn().Err(err).Str("ref", ref).Msg("image prefetch failed")
		}
	}
}
