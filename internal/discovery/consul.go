// Package discovery registers the service with a Consul agent and keeps its
// TTL health check passing while the process runs.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/consul/api"

	"github.com/signalsfoundry/orrery/internal/logging"
)

const (
	DefaultServiceName = "orrery"
	DefaultTTL         = 10 * time.Second
	// Consul reaps a registration whose check stays critical this long.
	deregisterAfter = time.Minute
)

// Registration describes one service instance.
type Registration struct {
	ID      string
	Name    string
	Address string
	Port    int
	Tags    []string
	TTL     time.Duration
}

// RegistrationFor derives a registration from a listen address such as
// ":8080" or "10.0.0.5:8080".
func RegistrationFor(name, listenAddr string) (Registration, error) {
	host, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return Registration{}, fmt.Errorf("parse listen address %q: %w", listenAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Registration{}, fmt.Errorf("parse port %q: %w", portStr, err)
	}
	if name == "" {
		name = DefaultServiceName
	}
	// An unspecified bind address lets the agent advertise its own.
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		host = ""
	}
	return Registration{
		ID:      name + "-" + logging.NewRequestID()[:8],
		Name:    name,
		Address: host,
		Port:    port,
		TTL:     DefaultTTL,
	}, nil
}

func (r Registration) checkID() string {
	return "service:" + r.ID
}

// Registry talks to a Consul agent.
type Registry struct {
	client *api.Client
	log    logging.Logger
}

// NewRegistry returns a registry for the agent at addr. addr may carry an
// http:// or https:// scheme.
func NewRegistry(addr string, log logging.Logger) (*Registry, error) {
	if log == nil {
		log = logging.Noop()
	}
	cfg := api.DefaultConfig()
	cfg.Address = addr
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Registry{client: client, log: log}, nil
}

// Register adds the instance with a TTL check and marks it passing.
func (r *Registry) Register(ctx context.Context, reg Registration) error {
	ttl := reg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	svc := &api.AgentServiceRegistration{
		ID:      reg.ID,
		Name:    reg.Name,
		Address: reg.Address,
		Port:    reg.Port,
		Tags:    reg.Tags,
		Check: &api.AgentServiceCheck{
			CheckID:                        reg.checkID(),
			TTL:                            ttl.String(),
			DeregisterCriticalServiceAfter: deregisterAfter.String(),
		},
	}
	opts := api.ServiceRegisterOpts{}.WithContext(ctx)
	if err := r.client.Agent().ServiceRegisterOpts(svc, opts); err != nil {
		return fmt.Errorf("register %s: %w", reg.ID, err)
	}
	r.log.Info(ctx, "registered with consul",
		logging.String("service_id", reg.ID),
		logging.String("service", reg.Name),
		logging.Int("port", reg.Port),
	)
	return r.Pass(reg)
}

// Pass refreshes the TTL check.
func (r *Registry) Pass(reg Registration) error {
	if err := r.client.Agent().UpdateTTL(reg.checkID(), "ok", api.HealthPassing); err != nil {
		return fmt.Errorf("update ttl %s: %w", reg.ID, err)
	}
	return nil
}

// Heartbeat refreshes the TTL check at a third of the TTL until ctx ends.
func (r *Registry) Heartbeat(ctx context.Context, reg Registration) {
	ttl := reg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Pass(reg); err != nil {
				r.log.Warn(ctx, "failed to report healthy state", logging.Err(err))
			}
		}
	}
}

// Deregister removes the instance.
func (r *Registry) Deregister(ctx context.Context, reg Registration) error {
	q := (&api.QueryOptions{}).WithContext(ctx)
	if err := r.client.Agent().ServiceDeregisterOpts(reg.ID, q); err != nil {
		return fmt.Errorf("deregister %s: %w", reg.ID, err)
	}
	r.log.Info(ctx, "deregistered from consul", logging.String("service_id", reg.ID))
	return nil
}
