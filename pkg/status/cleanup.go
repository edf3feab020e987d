package status

import (
	"context"

	"github.com/go-go-golems/fleetctl/pkg/compose"
	"github.com/go-go-golems/fleetctl/pkg/oplog"
	"github.com/pkg/errors"
)

type Cleaner interface {
	Down(ctx context.Context, opts compose.DownOptions) error
	Prune(ctx context.Context) error
}

// Cleanup removes every managed container, its volumes and orphans, then
// prunes dangling images, volumes and networks. It is not reversible.
func Cleanup(ctx context.Context, c Cleaner, log *oplog.Log) error {
	if log == nil {
		log = oplog.Nop()
	}
	log.Warn().Msg("removing containers, volumes and orphans")
	if err := c.Down(ctx, compose.DownOptions{Volumes: true, RemoveOrphans: true}); err != nil {
		log.Error().Err(err).Msg("compose down failed")
		return errors.Wrap(err, "compose down")
	}
	log.Info().Msg("pruning dangling images, volumes and networks")
	if err := c.Prune(ctx); err != nil {
		log.Error().Err(err).Msg("prune failed")
		return errors.Wrap(err, "prune")
	}
	log.Success().Msg("cleanup complete")
	return nil
}
