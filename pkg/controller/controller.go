// Package controller starts, stops and restarts services of the fleet in
// dependency order. It does not wait for health; that is the probe's job.
package controller

import (
	"context"
	"fmt"

	"github.com/go-go-golems/fleetctl/pkg/oplog"
	"github.com/go-go-golems/fleetctl/pkg/registry"
	"github.com/pkg/errors"
)

var ErrUnknownService = errors.New("unknown service")

// ServiceControlError reports a substrate failure for one service.
type ServiceControlError struct {
	Service string
	Op      string
	Cause   error
}

func (e *ServiceControlError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Service, e.Cause)
}

func (e *ServiceControlError) Unwrap() error { return e.Cause }

// ServiceManager is the start/stop primitive of the substrate.
type ServiceManager interface {
	Up(ctx context.Context, services ...string) error
	Stop(ctx context.Context, services ...string) error
	Restart(ctx context.Context, services ...string) error
	Pull(ctx context.Context) error
	Build(ctx context.Context) error
}

type Controller struct {
	fleet registry.Fleet
	mgr   ServiceManager
	log   *oplog.Log
}

func New(fleet registry.Fleet, mgr ServiceManager, log *oplog.Log) *Controller {
	if log == nil {
		log = oplog.Nop()
	}
	return &Controller{fleet: fleet, mgr: mgr, log: log}
}

func (c *Controller) Fleet() registry.Fleet { return c.fleet }

// Start starts one service, or the whole fleet in ascending start order when
// name is empty.
func (c *Controller) Start(ctx context.Context, name string) error {
	svcs, err := c.scope(name, c.fleet.All())
	if err != nil {
		return err
	}
	return c.apply(ctx, "start", svcs, c.mgr.Up)
}

// Stop stops one service, or the whole fleet in descending start order.
func (c *Controller) Stop(ctx context.Context, name string) error {
	svcs, err := c.scope(name, c.fleet.StopOrder())
	if err != nil {
		return err
	}
	return c.apply(ctx, "stop", svcs, c.mgr.Stop)
}

func (c *Controller) Restart(ctx context.Context, name string) error {
	svcs, err := c.scope(name, c.fleet.All())
	if err != nil {
		return err
	}
	return c.apply(ctx, "restart", svcs, c.mgr.Restart)
}

// StartRole starts every service with the given role, in start order.
func (c *Controller) StartRole(ctx context.Context, role registry.Role) error {
	return c.apply(ctx, "start", c.fleet.ByRole(role), c.mgr.Up)
}

// Build rebuilds local images, then starts the whole fleet.
func (c *Controller) Build(ctx context.Context) error {
	c.log.Info().Msg("building images")
	if err := c.mgr.Build(ctx); err != nil {
		return &ServiceControlError{Service: "fleet", Op: "build", Cause: err}
	}
	return c.Start(ctx, "")
}

// Update pulls newer images, rebuilds and restarts the fleet.
func (c *Controller) Update(ctx context.Context) error {
	c.log.Info().Msg("pulling images")
	if err := c.mgr.Pull(ctx); err != nil {
		return &ServiceControlError{Service: "fleet", Op: "pull", Cause: err}
	}
	c.log.Info().Msg("building images")
	if err := c.mgr.Build(ctx); err != nil {
		return &ServiceControlError{Service: "fleet", Op: "build", Cause: err}
	}
	return c.Restart(ctx, "")
}

func (c *Controller) scope(name string, all []registry.ServiceDescriptor) ([]registry.ServiceDescriptor, error) {
	if name == "" {
		return all, nil
	}
	svc, ok := c.fleet.Lookup(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownService, "%q (known: %v)", name, c.fleet.Names())
	}
	return []registry.ServiceDescriptor{svc}, nil
}

func (c *Controller) apply(ctx context.Context, op string, svcs []registry.ServiceDescriptor, fn func(context.Context, ...string) error) error {
	for _, svc := range svcs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, svc.Name); err != nil {
			c.log.Error().Str("service", svc.Name).Err(err).Msgf("%s failed", op)
			return &ServiceControlError{Service: svc.Name, Op: op, Cause: err}
		}
		c.log.Success().Str("service", svc.Name).Msgf("%s issued", op)
	}
	return nil
}
