// Package publisher implements the atomic visibility cutover of §4.3: the
// sole mutator of ACTIVE/ARCHIVED visibility and an asset's
// current-version pointer.
package publisher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ssotoa70/mediasearch/engine/domain"
	"github.com/ssotoa70/mediasearch/pkg/logging"
	"github.com/ssotoa70/mediasearch/ports"
)

// Publisher cuts a version over to ACTIVE, archiving whatever was
// previously current.
type Publisher struct {
	Store ports.Database
	log   zerolog.Logger
}

// New constructs a Publisher.
func New(store ports.Database) *Publisher {
	return &Publisher{Store: store, log: logging.For("publisher")}
}

// Publish runs the cutover for assetID to newVersionID inside a single
// transaction, per the ordering rule of §4.3: readers must never observe
// both the old and new version ACTIVE, nor a current-version-id pointing
// at a non-ACTIVE version. Reading the asset's current-version-id happens
// inside the same transaction so that two concurrent publishes for the
// same asset serialize rather than race (§5).
func (p *Publisher) Publish(ctx context.Context, assetID domain.AssetID, newVersionID domain.VersionID) error {
	return p.Store.WithTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		asset, err := tx.GetAssetByID(ctx, assetID)
		if err != nil {
			return fmt.Errorf("load asset: %w", err)
		}

		current := asset.CurrentVersionID
		if current != nil && *current == newVersionID {
			// Already active: publish is idempotent (§8 round-trip law).
			p.log.Debug().Str("asset_id", string(assetID)).Msg("publisher: already active, no-op")
			return nil
		}

		if current != nil {
			if err := tx.SetSegmentsVisibility(ctx, assetID, *current, domain.VisibilityActive, domain.VisibilityArchived); err != nil {
				return fmt.Errorf("archive old segments: %w", err)
			}
			if err := tx.SetEmbeddingsVisibility(ctx, assetID, *current, domain.VisibilityActive, domain.VisibilityArchived); err != nil {
				return fmt.Errorf("archive old embeddings: %w", err)
			}
			if err := tx.SetVersionState(ctx, *current, domain.StatusIndexed, domain.ArchivedState); err != nil {
				return fmt.Errorf("archive old version: %w", err)
			}
		}

		if err := tx.SetSegmentsVisibility(ctx, assetID, newVersionID, domain.VisibilityStaging, domain.VisibilityActive); err != nil {
			return fmt.Errorf("activate new segments: %w", err)
		}
		if err := tx.SetEmbeddingsVisibility(ctx, assetID, newVersionID, domain.VisibilityStaging, domain.VisibilityActive); err != nil {
			return fmt.Errorf("activate new embeddings: %w", err)
		}

		if err := tx.SetAssetCurrentVersion(ctx, assetID, newVersionID); err != nil {
			return fmt.Errorf("set current version: %w", err)
		}
		if err := tx.SetAssetStatus(ctx, assetID, domain.StatusIndexed, nil); err != nil {
			return fmt.Errorf("set asset indexed: %w", err)
		}
		if err := tx.SetVersionState(ctx, newVersionID, domain.StatusIndexed, domain.ActiveState); err != nil {
			return fmt.Errorf("set new version published: %w", err)
		}

		p.log.Info().
			Str("asset_id", string(assetID)).
			Str("new_version_id", string(newVersionID)).
			Msg("publisher: cutover complete")
		return nil
	})
}
