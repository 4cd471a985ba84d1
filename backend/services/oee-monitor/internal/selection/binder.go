package selection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"plantoee/backend/services/oee-monitor/internal/models"
)

// StorageKey is the session key holding the serialized selected unit.
const StorageKey = "selectedMachine"

// ErrNoSelection is returned when an operation needs a selected unit.
var ErrNoSelection = errors.New("selection: no unit selected")

// Binder owns the selected equipment unit and filters telemetry by it.
type Binder struct {
	store  SessionStore
	logger *zap.Logger

	mu      sync.RWMutex
	current *models.EquipmentUnit
}

// NewBinder builds a binder with nothing selected. Call Restore to load the persisted unit.
func NewBinder(store SessionStore, logger *zap.Logger) *Binder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binder{store: store, logger: logger}
}

// Select makes unit current and persists it. The in-memory selection is applied even
// when persisting fails; the error is returned so the caller can surface it.
func (b *Binder) Select(ctx context.Context, unit models.EquipmentUnit) error {
	data, err := json.Marshal(unit)
	if err != nil {
		return fmt.Errorf("selection: encode unit: %w", err)
	}

	b.mu.Lock()
	u := unit
	b.current = &u
	b.mu.Unlock()

	if err := b.store.Set(ctx, StorageKey, data); err != nil {
		b.logger.Warn("failed to persist selection", zap.Int64("workcenter_id", unit.ID), zap.Error(err))
		return err
	}
	return nil
}

// Deselect clears the selection and removes the persisted key.
func (b *Binder) Deselect(ctx context.Context) error {
	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()

	if err := b.store.Delete(ctx, StorageKey); err != nil {
		b.logger.Warn("failed to remove persisted selection", zap.Error(err))
		return err
	}
	return nil
}

// Restore loads the persisted unit. An absent key, a storage failure or an unparsable
// value all mean "no selection"; unparsable values are removed.
func (b *Binder) Restore(ctx context.Context) (models.EquipmentUnit, bool) {
	data, err := b.store.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			b.logger.Warn("failed to read persisted selection", zap.Error(err))
		}
		b.clear()
		return models.EquipmentUnit{}, false
	}

	unit, err := decodeUnit(data)
	if err != nil {
		b.logger.Warn("discarding corrupt persisted selection", zap.Error(err))
		b.clear()
		if delErr := b.store.Delete(ctx, StorageKey); delErr != nil {
			b.logger.Warn("failed to remove corrupt selection", zap.Error(delErr))
		}
		return models.EquipmentUnit{}, false
	}

	b.mu.Lock()
	b.current = &unit
	b.mu.Unlock()
	b.logger.Info("restored selection", zap.Int64("workcenter_id", unit.ID), zap.String("name", unit.Name))
	return unit, true
}

// Current returns the selected unit.
func (b *Binder) Current() (models.EquipmentUnit, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return models.EquipmentUnit{}, false
	}
	return *b.current, true
}

// Accepts reports whether event belongs to the selected unit.
func (b *Binder) Accepts(event models.TelemetryEvent) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current != nil && event.Data.UnitID == b.current.ID
}

func (b *Binder) clear() {
	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()
}

func decodeUnit(data []byte) (models.EquipmentUnit, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return models.EquipmentUnit{}, errors.New("empty value")
	}
	var unit models.EquipmentUnit
	if err := json.Unmarshal(trimmed, &unit); err != nil {
		return models.EquipmentUnit{}, err
	}
	return unit, nil
}
