package costing

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"docflow/internal/core/apperror"
	"docflow/internal/core/id"
	"docflow/internal/core/tx"
	"docflow/internal/core/types"
	"docflow/pkg/logger"
)

// Engine applies and retracts stock movements while keeping every layer
// equal to the fold of its ledger.
type Engine struct {
	repo      Repository
	txManager tx.Manager
}

// NewEngine creates a costing engine.
func NewEngine(repo Repository, txManager tx.Manager) *Engine {
	return &Engine{repo: repo, txManager: txManager}
}

// AverageCost returns the current average cost. An empty layer yields zero.
func (e *Engine) AverageCost(ctx context.Context, itemID, locationID id.ID) (types.Money, error) {
	layer, err := e.repo.GetLayer(ctx, Key{ItemID: itemID, LocationID: locationID})
	if err != nil {
		return decimal.Zero, fmt.Errorf("get cost layer: %w", err)
	}
	if layer.Quantity <= 0 {
		return decimal.Zero, nil
	}
	return layer.AverageCost, nil
}

// Layer returns the current state of a layer.
func (e *Engine) Layer(ctx context.Context, itemID, locationID id.ID) (Layer, error) {
	return e.repo.GetLayer(ctx, Key{ItemID: itemID, LocationID: locationID})
}

// LockKeys returns the sorted resource keys touched by entries.
func LockKeys(entries []Entry) []string {
	keys := make([]string, 0, len(entries))
	for _, en := range entries {
		keys = append(keys, en.Key().LockKey())
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// Apply records entries for recorder and updates the touched layers.
// Entries are applied in order, so conversion inputs must precede outputs.
// The returned slice holds the unit cost applied to each entry.
func (e *Engine) Apply(ctx context.Context, rec Recorder, entries []Entry) ([]types.Money, error) {
	applied := make([]types.Money, len(entries))

	err := e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		layers := make(map[Key]*Layer)
		movements := make([]Movement, 0, len(entries))
		now := time.Now().UTC()

		for i, en := range entries {
			if en.Quantity <= 0 {
				return apperror.NewInvariantViolation("non-positive stock movement quantity").
					WithDetail("line_id", en.LineID.String()).
					WithDetail("quantity", en.Quantity.String())
			}

			layer, ok := layers[en.Key()]
			if !ok {
				l, err := e.repo.GetLayerForUpdate(ctx, en.Key())
				if err != nil {
					return fmt.Errorf("lock cost layer: %w", err)
				}
				layer = &l
				layers[en.Key()] = layer
			}

			var err error
			applied[i], err = step(layer, en.Direction, en.Quantity, en.UnitCost)
			if err != nil {
				return err
			}

			movements = append(movements, Movement{
				RecorderID:   rec.ID,
				RecorderKind: rec.Kind,
				LineID:       en.LineID,
				ItemID:       en.ItemID,
				LocationID:   en.LocationID,
				Direction:    en.Direction,
				Quantity:     en.Quantity,
				UnitCost:     applied[i],
				Period:       rec.Date,
				CreatedAt:    now,
			})
		}

		if err := e.repo.AppendMovements(ctx, movements); err != nil {
			return fmt.Errorf("append movements: %w", err)
		}
		return e.saveLayers(ctx, layers)
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// Retract removes every movement of recorderID and recomputes each affected
// layer by replaying its remaining ledger in original order.
func (e *Engine) Retract(ctx context.Context, recorderID id.ID) error {
	return e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		own, err := e.repo.MovementsByRecorder(ctx, recorderID)
		if err != nil {
			return fmt.Errorf("load recorder movements: %w", err)
		}
		if len(own) == 0 {
			return nil
		}

		keys := make([]Key, 0, len(own))
		for _, m := range own {
			if !slices.Contains(keys, m.Key()) {
				keys = append(keys, m.Key())
			}
		}
		slices.SortFunc(keys, func(a, b Key) int {
			return strings.Compare(a.LockKey(), b.LockKey())
		})

		layers := make(map[Key]*Layer, len(keys))
		for _, k := range keys {
			l, err := e.repo.GetLayerForUpdate(ctx, k)
			if err != nil {
				return fmt.Errorf("lock cost layer: %w", err)
			}
			layers[k] = &l
		}

		if err := e.repo.DeleteMovementsByRecorder(ctx, recorderID); err != nil {
			return fmt.Errorf("delete movements: %w", err)
		}

		for _, k := range keys {
			rest, err := e.repo.Movements(ctx, k)
			if err != nil {
				return fmt.Errorf("load ledger: %w", err)
			}
			replayed, err := Replay(k, rest)
			if err != nil {
				return err
			}
			replayed.Version = layers[k].Version
			*layers[k] = replayed
		}

		logger.Debug(ctx, "cost layers recomputed", "recorder_id", recorderID, "layers", len(keys))
		return e.saveLayers(ctx, layers)
	})
}

func (e *Engine) saveLayers(ctx context.Context, layers map[Key]*Layer) error {
	for _, l := range layers {
		if l.Quantity < 0 {
			return apperror.NewInvariantViolation("negative quantity on hand after stock movement").
				WithDetail("item_id", l.ItemID.String()).
				WithDetail("location_id", l.LocationID.String()).
				WithDetail("quantity", l.Quantity.String())
		}
		if err := e.repo.SaveLayer(ctx, *l); err != nil {
			return fmt.Errorf("save cost layer: %w", err)
		}
	}
	return nil
}

// step mutates layer by one movement and returns the unit cost applied.
func step(layer *Layer, dir Direction, qty types.Quantity, unitCost types.Money) (types.Money, error) {
	switch dir {
	case In:
		oldValue := layer.Quantity.Decimal().Mul(layer.AverageCost)
		newQty := layer.Quantity + qty
		layer.AverageCost = oldValue.Add(qty.Decimal().Mul(unitCost)).Div(newQty.Decimal())
		layer.Quantity = newQty
		return unitCost, nil
	case Out:
		if layer.Quantity < qty {
			return decimal.Zero, apperror.NewInsufficientStock(
				layer.ItemID.String(), layer.LocationID.String(),
				qty.String(), layer.Quantity.String(),
			)
		}
		layer.Quantity -= qty
		return layer.AverageCost, nil
	}
	return decimal.Zero, apperror.NewInvariantViolation(fmt.Sprintf("unknown movement direction %q", dir))
}

// Replay folds movements in Seq order starting from an empty layer.
// An issue that no longer has enough quantity on hand means a later
// document consumed stock that the retracted one supplied.
func Replay(key Key, movements []Movement) (Layer, error) {
	ordered := slices.Clone(movements)
	slices.SortStableFunc(ordered, func(a, b Movement) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})

	layer := Layer{ItemID: key.ItemID, LocationID: key.LocationID, AverageCost: decimal.Zero}
	for _, m := range ordered {
		if _, err := step(&layer, m.Direction, m.Quantity, m.UnitCost); err != nil {
			if apperror.IsValidation(err) {
				return Layer{}, apperror.NewDependencyConflict("stock supplied by this document was already issued").
					WithDetail("item_id", key.ItemID.String()).
					WithDetail("location_id", key.LocationID.String()).
					WithDetail("blocking_recorder_id", m.RecorderID.String()).
					WithCause(err)
			}
			return Layer{}, err
		}
	}
	return layer, nil
}
