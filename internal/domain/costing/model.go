// Package costing maintains weighted-average cost layers per item and location
// on top of an append-only movement ledger.
package costing

import (
	"context"
	"fmt"
	"time"

	"docflow/internal/core/id"
	"docflow/internal/core/types"
)

// Direction of a stock movement.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// Layer is the running state of one (item, location) pair.
type Layer struct {
	ItemID      id.ID          `db:"item_id" json:"itemId"`
	LocationID  id.ID          `db:"location_id" json:"locationId"`
	Quantity    types.Quantity `db:"quantity" json:"quantityOnHand"`
	AverageCost types.Money    `db:"average_cost" json:"averageUnitCost"`
	Version     int            `db:"version" json:"-"`
}

// Value returns quantity × average cost.
func (l Layer) Value() types.Money {
	return l.Quantity.Decimal().Mul(l.AverageCost)
}

// Key identifies a cost layer.
type Key struct {
	ItemID     id.ID
	LocationID id.ID
}

// LockKey is the shared-resource key of the layer.
func (k Key) LockKey() string {
	return fmt.Sprintf("cost:%s:%s", k.ItemID, k.LocationID)
}

// Movement is one ledger row. Seq orders the ledger within a layer.
type Movement struct {
	Seq          int64          `db:"seq" json:"seq"`
	RecorderID   id.ID          `db:"recorder_id" json:"recorderId"`
	RecorderKind string         `db:"recorder_kind" json:"recorderKind"`
	LineID       id.ID          `db:"line_id" json:"lineId"`
	ItemID       id.ID          `db:"item_id" json:"itemId"`
	LocationID   id.ID          `db:"location_id" json:"locationId"`
	Direction    Direction      `db:"direction" json:"direction"`
	Quantity     types.Quantity `db:"quantity" json:"quantity"`
	UnitCost     types.Money    `db:"unit_cost" json:"unitCost"`
	Period       time.Time      `db:"period" json:"period"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}

// Key returns the layer the movement belongs to.
func (m Movement) Key() Key {
	return Key{ItemID: m.ItemID, LocationID: m.LocationID}
}

// Entry is a requested stock change. UnitCost is used for receipts only;
// issues are costed at the current average.
type Entry struct {
	LineID     id.ID
	ItemID     id.ID
	LocationID id.ID
	Direction  Direction
	Quantity   types.Quantity
	UnitCost   types.Money
}

// Key returns the layer the entry touches.
func (e Entry) Key() Key {
	return Key{ItemID: e.ItemID, LocationID: e.LocationID}
}

// Recorder is the document that owns a set of movements.
type Recorder struct {
	ID   id.ID
	Kind string
	Date time.Time
}

// Repository persists cost layers and the movement ledger.
type Repository interface {
	// GetLayer returns the layer or a zero layer when none exists.
	GetLayer(ctx context.Context, key Key) (Layer, error)

	// GetLayerForUpdate locks the layer row for the rest of the transaction.
	GetLayerForUpdate(ctx context.Context, key Key) (Layer, error)

	SaveLayer(ctx context.Context, layer Layer) error

	// AppendMovements stores movements and assigns increasing Seq values.
	AppendMovements(ctx context.Context, movements []Movement) error

	MovementsByRecorder(ctx context.Context, recorderID id.ID) ([]Movement, error)

	DeleteMovementsByRecorder(ctx context.Context, recorderID id.ID) error

	// Movements returns the ledger of a layer ordered by Seq.
	Movements(ctx context.Context, key Key) ([]Movement, error)
}
