package workflow

import (
	"github.com/nickyhof/AdOrchDB/core"
	"github.com/nickyhof/AdOrchDB/db"
	"github.com/nickyhof/AdOrchDB/sql"
)

// AssetPropagator carries a terminal approval outcome to the reviewed asset.
// It runs inside the decision's transaction.
type AssetPropagator interface {
	Propagate(tx *db.Tx, assetID int64, status Status) error
}

// AssetPropagatorFunc adapts a function to AssetPropagator.
type AssetPropagatorFunc func(tx *db.Tx, assetID int64, status Status) error

func (f AssetPropagatorFunc) Propagate(tx *db.Tx, assetID int64, status Status) error {
	return f(tx, assetID, status)
}

// StorePropagator writes the outcome to assets.status.
type StorePropagator struct{}

func (StorePropagator) Propagate(tx *db.Tx, assetID int64, status Status) error {
	_, err := tx.Exec(sql.UpdateByID(core.Assets, assetID, sql.Fields{"status": string(status)}))
	return err
}
