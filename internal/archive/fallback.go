package archive

import (
	"context"

	"orderflow/internal/model"

	"github.com/rs/zerolog"
)

// fallbackArchiver tries the primary archiver and falls back to the
// secondary when the primary fails.
type fallbackArchiver struct {
	primary   Archiver
	secondary Archiver
	logger    zerolog.Logger
}

// NewFallbackArchiver creates an archiver that tries primary first. A nil
// primary archives to secondary only.
func NewFallbackArchiver(primary, secondary Archiver, logger zerolog.Logger) Archiver {
	return &fallbackArchiver{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With().Str("component", "fallback-archiver").Logger(),
	}
}

func (a *fallbackArchiver) Archive(ctx context.Context, snapshot *model.OrderResponse) error {
	if a.primary != nil {
		err := a.primary.Archive(ctx, snapshot)
		if err == nil {
			return nil
		}
		a.logger.Warn().
			Err(err).
			Str("order_id", snapshot.ID.String()).
			Msg("primary archive failed, falling back to local file system")
	}

	return a.secondary.Archive(ctx, snapshot)
}
