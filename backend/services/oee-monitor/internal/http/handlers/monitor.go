package handlers

import (
	"context"

	"plantoee/backend/services/oee-monitor/internal/models"
	"plantoee/backend/services/oee-monitor/internal/pipeline"
)

// Monitor is the part of the pipeline the HTTP API drives.
type Monitor interface {
	Machines(ctx context.Context) ([]models.EquipmentUnit, error)
	Select(ctx context.Context, unitID int64) (models.EquipmentUnit, error)
	Deselect(ctx context.Context) error
	Current() (models.EquipmentUnit, bool)
	Snapshot() pipeline.Snapshot
	SaveMicrostop(ctx context.Context, rec models.MicrostopRecord) (models.MicrostopRecord, error)
	DeleteMicrostop(ctx context.Context, id int64) error
	Reconnect() error
}
