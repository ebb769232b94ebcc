package outlet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/models"
	"github.com/FLAMiNGPHYtON1/outlet-locator/repositories"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services"
	"github.com/FLAMiNGPHYtON1/outlet-locator/services/keylock"
)

// Coordinator writes normalized outlets, one storage transaction per record
type Coordinator struct {
	outlets repositories.OutletRepository
	txMgr   repositories.TransactionManager
	locks   *keylock.KeyLocker
	now     func() time.Time
	logger  *zap.Logger
}

// NewCoordinator creates an upsert coordinator. locks must be shared with the indexer.
func NewCoordinator(
	outlets repositories.OutletRepository,
	txMgr repositories.TransactionManager,
	locks *keylock.KeyLocker,
	logger *zap.Logger,
) *Coordinator {
	if locks == nil {
		locks = keylock.NewKeyLocker(0)
	}
	return &Coordinator{
		outlets: outlets,
		txMgr:   txMgr,
		locks:   locks,
		now:     time.Now,
		logger:  logger,
	}
}

// Upsert inserts new outlets and handles known ones according to overwrite:
// false refreshes scraped_at only, true replaces the descriptive fields.
// Malformed records are counted as failed and the batch goes on. A storage
// failure or cancellation stops the batch; earlier records stay committed.
func (c *Coordinator) Upsert(ctx context.Context, outlets []*models.Outlet, overwrite bool) (*models.UpsertResult, error) {
	result := &models.UpsertResult{}

	for _, outlet := range outlets {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := validate(outlet); err != nil {
			key := ""
			if outlet != nil {
				key = outlet.NaturalKey
			}
			result.Record(key, models.RecordFailed, err)
			continue
		}

		status, err := c.upsertOne(ctx, outlet, overwrite)
		if err != nil {
			if services.IsMalformedRecord(err) {
				result.Record(outlet.NaturalKey, models.RecordFailed, err)
				continue
			}
			c.logger.Error("upsert aborted",
				zap.String("natural_key", outlet.NaturalKey),
				zap.Int("committed", result.Saved()+result.Unchanged),
				zap.Error(err),
			)
			return result, err
		}
		result.Record(outlet.NaturalKey, status, nil)
	}

	c.logger.Info("upsert completed",
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
		zap.Bool("overwrite", overwrite),
	)
	return result, nil
}

func (c *Coordinator) upsertOne(ctx context.Context, outlet *models.Outlet, overwrite bool) (models.RecordStatus, error) {
	unlock := c.locks.Lock(outlet.NaturalKey)
	defer unlock()

	return services.WithTransactionResult(ctx, c.txMgr, func(txCtx context.Context) (models.RecordStatus, error) {
		now := c.now().UTC()

		existing, err := c.outlets.FindByKeyForUpdate(txCtx, outlet.NaturalKey)
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			if outlet.ID == uuid.Nil {
				outlet.ID = uuid.New()
			}
			outlet.CreatedAt = now
			outlet.UpdatedAt = now
			outlet.ScrapedAt = now

			inserted, err := c.outlets.Insert(txCtx, outlet)
			if err != nil {
				return "", err
			}
			if inserted {
				return models.RecordInserted, nil
			}

			// another process inserted the key between our read and write
			c.logger.Debug("lost insert race", zap.String("natural_key", outlet.NaturalKey))
			existing, err = c.outlets.FindByKeyForUpdate(txCtx, outlet.NaturalKey)
			if err != nil {
				return "", err
			}
		case err != nil:
			return "", err
		}

		return c.applyToExisting(txCtx, existing, outlet, overwrite, now)
	})
}

func (c *Coordinator) applyToExisting(
	ctx context.Context,
	existing, incoming *models.Outlet,
	overwrite bool,
	now time.Time,
) (models.RecordStatus, error) {
	if now.Before(existing.ScrapedAt) {
		now = existing.ScrapedAt
	}
	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt

	if !overwrite || existing.SameDescriptive(incoming) {
		if err := c.outlets.TouchScrapedAt(ctx, existing.NaturalKey, now); err != nil {
			return "", err
		}
		incoming.UpdatedAt = existing.UpdatedAt
		incoming.ScrapedAt = now
		return models.RecordUnchanged, nil
	}

	replaced := *existing
	replaced.ReplaceDescriptive(incoming)
	replaced.UpdatedAt = now
	replaced.ScrapedAt = now
	if err := c.outlets.Replace(ctx, &replaced); err != nil {
		return "", err
	}
	incoming.UpdatedAt = now
	incoming.ScrapedAt = now
	return models.RecordUpdated, nil
}

func validate(outlet *models.Outlet) error {
	switch {
	case outlet == nil:
		return services.NewDomainError(services.ErrorTypeMalformedRecord, "outlet is nil", nil)
	case outlet.NaturalKey == "":
		return services.NewDomainError(services.ErrorTypeMalformedRecord, "natural key is empty", nil)
	case outlet.Name == "" || outlet.Address == "":
		return services.NewDomainError(services.ErrorTypeMalformedRecord, "name and address are required", nil)
	case (outlet.Latitude == nil) != (outlet.Longitude == nil):
		return services.NewDomainError(services.ErrorTypeMalformedRecord, "latitude and longitude must be set together", nil)
	}
	return nil
}
