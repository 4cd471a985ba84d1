package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"plantoee/backend/services/oee-monitor/internal/metrics"
	"plantoee/backend/services/oee-monitor/internal/models"
	"plantoee/backend/services/oee-monitor/internal/observability"
	"plantoee/backend/services/oee-monitor/internal/pareto"
	"plantoee/backend/services/oee-monitor/internal/selection"
	"plantoee/backend/services/oee-monitor/internal/stream"
	"plantoee/backend/services/oee-monitor/internal/telemetry"
)

var (
	// ErrUnknownUnit is returned when selecting a unit that is not in the OEE catalog.
	ErrUnknownUnit = errors.New("pipeline: unknown or untracked unit")
	// ErrNoActiveOrder is returned for microstop changes while no order is running.
	ErrNoActiveOrder = errors.New("pipeline: no active order")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("pipeline: stopped")
)

// Catalog provides the machine list and per-unit bootstrap data.
type Catalog interface {
	FetchMachines(ctx context.Context) ([]models.EquipmentUnit, error)
	FetchPrepareOEEData(ctx context.Context, unitID int64) (models.PrepareOEEData, error)
}

// MicrostopStore reads and writes the microstops of an order.
type MicrostopStore interface {
	FetchMicrostops(ctx context.Context, orderID int64) ([]models.MicrostopRecord, error)
	CreateMicrostop(ctx context.Context, rec models.MicrostopRecord) (models.MicrostopRecord, error)
	UpdateMicrostop(ctx context.Context, rec models.MicrostopRecord) (models.MicrostopRecord, error)
	DeleteMicrostop(ctx context.Context, orderID, id int64) error
}

// Recorder receives pipeline counters.
type Recorder interface {
	telemetry.Recorder
	EventDropped(reason string)
	ReconnectScheduled()
	StreamState(s stream.State)
	ParetoRecomputed()
}

// Deps are the collaborators of a Pipeline. Recorder, Clock, Now and Logger may be nil.
type Deps struct {
	URL        string
	Dialer     stream.Dialer
	Clock      stream.Clock
	Policy     stream.Policy
	Catalog    Catalog
	Microstops MicrostopStore
	Binder     *selection.Binder
	Formatter  *metrics.TimeFormatter
	TopN       int
	Recorder   Recorder
	Now        func() time.Time
	Logger     *zap.Logger
}

// Snapshot is the current state of every published value.
type Snapshot struct {
	Selection  *models.EquipmentUnit    `json:"selection"`
	Metrics    models.MetricsSnapshot   `json:"metrics"`
	Order      models.OrderInfo         `json:"order"`
	TimeSeries models.TimeSeriesFrame   `json:"timeseries"`
	Pareto     models.ParetoResult      `json:"pareto"`
	Stream     string                   `json:"stream"`
	Microstops []models.MicrostopRecord `json:"microstops"`
}

// Pipeline connects the stream, the selection and the reducers, and publishes the
// derived values. Events, selection changes and microstop edits are applied one at
// a time.
type Pipeline struct {
	url        string
	manager    *stream.Manager
	processor  *telemetry.Processor
	binder     *selection.Binder
	reducer    *metrics.Reducer
	aggregator *pareto.Aggregator
	catalog    Catalog
	microstops MicrostopStore
	formatter  *metrics.TimeFormatter
	recorder   Recorder
	now        func() time.Time
	logger     *zap.Logger

	metrics *Observable[models.MetricsSnapshot]
	series  *Observable[models.TimeSeriesFrame]
	pareto  *Observable[models.ParetoResult]
	orders  *Observable[models.OrderInfo]
	alerts  *Observable[Alert]
	state   *Observable[stream.State]

	// mu serializes state changes and their publication.
	mu       sync.Mutex
	selGen   uint64
	live     bool
	degraded bool

	machinesMu sync.RWMutex
	machines   []models.EquipmentUnit

	ctx     context.Context
	cancel  context.CancelFunc
	lifeMu  sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// New wires a pipeline. Nothing connects until Start.
func New(deps Deps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	binder := deps.Binder
	if binder == nil {
		binder = selection.NewBinder(selection.NewMemoryStore(), logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		url:        deps.URL,
		binder:     binder,
		reducer:    metrics.NewReducer(now),
		aggregator: pareto.NewAggregator(deps.TopN),
		catalog:    deps.Catalog,
		microstops: deps.Microstops,
		formatter:  deps.Formatter,
		recorder:   recorder,
		now:        now,
		logger:     logger,
		metrics:    NewObservable(models.MetricsSnapshot{}),
		series:     NewObservable(models.EmptyFrame()),
		pareto:     NewObservable(models.EmptyParetoResult()),
		orders:     NewObservable(models.EmptyOrderInfo()),
		alerts:     NewObservable(Alert{}),
		state:      NewObservable(stream.StateDisconnected),
		ctx:        ctx,
		cancel:     cancel,
	}

	router := telemetry.NewRouter(logger)
	router.Register(models.KindOEEData, p.handleOEE)
	p.processor = telemetry.NewProcessor(telemetry.NewDecoder(now), router, recorder, logger)

	p.manager = stream.NewManager(deps.Dialer, deps.Clock, deps.Policy, stream.Handlers{
		OnOpen:      p.onOpen,
		OnMessage:   func(frame []byte) { _ = p.processor.Process(frame) },
		OnError:     func(err error) { logger.Debug("stream error", zap.Error(err)) },
		OnRetry:     p.onRetry,
		OnExhausted: p.onExhausted,
		OnState:     p.onState,
	}, logger)
	return p
}

// Metrics publishes the latest scalar snapshot.
func (p *Pipeline) Metrics() *Observable[models.MetricsSnapshot] { return p.metrics }

// TimeSeries publishes the stacked chart frame.
func (p *Pipeline) TimeSeries() *Observable[models.TimeSeriesFrame] { return p.series }

// Pareto publishes the Pareto result of the active order.
func (p *Pipeline) Pareto() *Observable[models.ParetoResult] { return p.pareto }

// Orders publishes order metadata changes.
func (p *Pipeline) Orders() *Observable[models.OrderInfo] { return p.orders }

// Alerts publishes connectivity and backend notifications.
func (p *Pipeline) Alerts() *Observable[Alert] { return p.alerts }

// StreamState publishes connection state changes.
func (p *Pipeline) StreamState() *Observable[stream.State] { return p.state }

// Start restores the persisted selection, bootstraps it in the background and opens
// the stream. It does not wait for the connection.
func (p *Pipeline) Start(ctx context.Context) error {
	p.lifeMu.Lock()
	if p.stopped {
		p.lifeMu.Unlock()
		return ErrStopped
	}
	if p.started {
		p.lifeMu.Unlock()
		return nil
	}
	p.started = true
	p.lifeMu.Unlock()

	p.mu.Lock()
	unit, ok := p.binder.Restore(ctx)
	var gen uint64
	if ok {
		p.selGen++
		gen = p.selGen
		p.resetLocked(unit.ID)
	}
	p.mu.Unlock()

	if ok {
		p.spawn(func(ctx context.Context) { p.bootstrap(ctx, gen, unit) })
	}
	p.manager.Open(p.url)
	return nil
}

// Stop closes the stream, cancels the pending reconnect, waits for background loads
// and releases every subscription. It is safe to call more than once.
func (p *Pipeline) Stop() {
	p.lifeMu.Lock()
	if p.stopped {
		p.lifeMu.Unlock()
		return
	}
	p.stopped = true
	p.lifeMu.Unlock()

	p.cancel()
	p.manager.Close()
	p.wg.Wait()

	p.metrics.Close()
	p.series.Close()
	p.pareto.Close()
	p.orders.Close()
	p.alerts.Close()
	p.state.Close()
	p.logger.Info("pipeline stopped")
}

// Reconnect resets the retry budget and opens the stream again.
func (p *Pipeline) Reconnect() error {
	if p.isStopped() {
		return ErrStopped
	}
	if err := p.manager.Reconnect(); err != nil {
		return err
	}
	p.publishAlert(SeverityInfo, "reconnecting")
	return nil
}

// Machines fetches the catalog and keeps the units with OEE tracking enabled.
func (p *Pipeline) Machines(ctx context.Context) ([]models.EquipmentUnit, error) {
	units, err := p.catalog.FetchMachines(ctx)
	if err != nil {
		return nil, err
	}
	tracked := models.TrackedUnits(units)

	p.machinesMu.Lock()
	p.machines = tracked
	p.machinesMu.Unlock()
	return tracked, nil
}

// Select makes unitID the active unit, resets derived state and bootstraps it.
// Persisting the selection is best effort.
func (p *Pipeline) Select(ctx context.Context, unitID int64) (models.EquipmentUnit, error) {
	if p.isStopped() {
		return models.EquipmentUnit{}, ErrStopped
	}
	unit, err := p.resolve(ctx, unitID)
	if err != nil {
		return models.EquipmentUnit{}, err
	}

	p.mu.Lock()
	if err := p.binder.Select(ctx, unit); err != nil {
		p.logger.Warn("selection not persisted", zap.Error(err))
	}
	p.selGen++
	gen := p.selGen
	p.resetLocked(unit.ID)
	p.mu.Unlock()

	p.logger.Info("unit selected", zap.Int64("workcenter_id", unit.ID), zap.String("name", unit.Name))
	p.spawn(func(ctx context.Context) { p.bootstrap(ctx, gen, unit) })
	return unit, nil
}

// Deselect clears the active unit and every derived value.
func (p *Pipeline) Deselect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.binder.Deselect(ctx); err != nil {
		p.logger.Warn("selection removal not persisted", zap.Error(err))
	}
	p.selGen++
	p.resetLocked(0)
	p.logger.Info("unit deselected")
	return nil
}

// Current returns the selected unit.
func (p *Pipeline) Current() (models.EquipmentUnit, bool) {
	return p.binder.Current()
}

// SaveMicrostop creates rec when its id is zero and updates it otherwise, then
// recomputes the Pareto result. A zero order id means the active order.
func (p *Pipeline) SaveMicrostop(ctx context.Context, rec models.MicrostopRecord) (models.MicrostopRecord, error) {
	if rec.OrderID == 0 {
		orderID, ok := p.aggregator.OrderID()
		if !ok {
			return models.MicrostopRecord{}, ErrNoActiveOrder
		}
		rec.OrderID = orderID
	}

	var (
		saved models.MicrostopRecord
		err   error
	)
	if rec.ID == 0 {
		saved, err = p.microstops.CreateMicrostop(ctx, rec)
	} else {
		saved, err = p.microstops.UpdateMicrostop(ctx, rec)
	}
	if err != nil {
		return models.MicrostopRecord{}, fmt.Errorf("pipeline: save microstop: %w", err)
	}

	p.mu.Lock()
	if res, ok := p.aggregator.Upsert(saved); ok {
		p.publishParetoLocked(res)
	}
	p.mu.Unlock()
	return saved, nil
}

// DeleteMicrostop removes a microstop of the active order and recomputes.
func (p *Pipeline) DeleteMicrostop(ctx context.Context, id int64) error {
	orderID, ok := p.aggregator.OrderID()
	if !ok {
		return ErrNoActiveOrder
	}
	if err := p.microstops.DeleteMicrostop(ctx, orderID, id); err != nil {
		return fmt.Errorf("pipeline: delete microstop: %w", err)
	}

	p.mu.Lock()
	if res, ok := p.aggregator.Remove(id); ok {
		p.publishParetoLocked(res)
	}
	p.mu.Unlock()
	return nil
}

// Snapshot returns the latest published values.
func (p *Pipeline) Snapshot() Snapshot {
	snap := Snapshot{
		Metrics:    p.metrics.Latest(),
		Order:      p.orders.Latest(),
		TimeSeries: p.series.Latest(),
		Pareto:     p.pareto.Latest(),
		Stream:     p.manager.State().String(),
		Microstops: p.aggregator.Records(),
	}
	if unit, ok := p.binder.Current(); ok {
		snap.Selection = &unit
	}
	if snap.Microstops == nil {
		snap.Microstops = []models.MicrostopRecord{}
	}
	return snap
}

func (p *Pipeline) handleOEE(event models.TelemetryEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.binder.Accepts(event) {
		if _, ok := p.binder.Current(); ok {
			p.recorder.EventDropped(observability.DropOtherUnit)
		} else {
			p.recorder.EventDropped(observability.DropNoSelection)
		}
		return
	}

	p.live = true
	snap := p.reducer.Apply(event)
	p.metrics.Publish(snap)
	p.applyOrderLocked(p.reducer.Order())
}

// applyOrderLocked publishes order changes and reloads microstops when the order id moves.
func (p *Pipeline) applyOrderLocked(order models.OrderInfo) {
	prev := p.orders.Latest()
	if sameOrderInfo(prev, order) {
		return
	}
	p.orders.Publish(order)
	if prev.SameOrder(order) {
		return
	}

	if order.OrderID == nil {
		p.publishParetoLocked(p.aggregator.Clear())
		return
	}
	orderID := *order.OrderID
	gen := p.selGen
	p.spawn(func(ctx context.Context) { p.loadMicrostops(ctx, gen, orderID) })
}

func (p *Pipeline) bootstrap(ctx context.Context, gen uint64, unit models.EquipmentUnit) {
	data, err := p.catalog.FetchPrepareOEEData(ctx, unit.ID)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("bootstrap failed", zap.Int64("workcenter_id", unit.ID), zap.Error(err))
			p.publishAlert(SeverityWarning, fmt.Sprintf("could not load OEE data for %s", unit.Name))
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.selGen {
		return
	}
	p.series.Publish(metrics.Ingest(models.TimeSeriesFrame{Labels: data.Labels, Datasets: data.Datasets}, p.formatter))
	// live frames that arrived during the fetch are newer than the bootstrap scalars
	if p.live {
		return
	}
	snap, order := p.reducer.Seed(unit.ID, data)
	p.metrics.Publish(snap)
	p.applyOrderLocked(order)
}

func (p *Pipeline) loadMicrostops(ctx context.Context, gen uint64, orderID int64) {
	records, err := p.microstops.FetchMicrostops(ctx, orderID)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("microstop load failed", zap.Int64("order_id", orderID), zap.Error(err))
			p.publishAlert(SeverityWarning, fmt.Sprintf("could not load microstops for order %d", orderID))
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	current := p.orders.Latest().OrderID
	if gen != p.selGen || current == nil || *current != orderID {
		return
	}
	p.publishParetoLocked(p.aggregator.Load(orderID, records))
	p.logger.Debug("microstops loaded", zap.Int64("order_id", orderID), zap.Int("count", len(records)))
}

// resetLocked drops every derived value, e.g. when the selection changes.
func (p *Pipeline) resetLocked(unitID int64) {
	p.live = false
	p.reducer.Reset()
	p.metrics.Publish(models.MetricsSnapshot{UnitID: unitID})
	p.series.Publish(models.EmptyFrame())
	p.orders.Publish(models.EmptyOrderInfo())
	p.pareto.Publish(p.aggregator.Clear())
}

func (p *Pipeline) publishParetoLocked(res models.ParetoResult) {
	p.recorder.ParetoRecomputed()
	p.pareto.Publish(res)
}

func (p *Pipeline) resolve(ctx context.Context, unitID int64) (models.EquipmentUnit, error) {
	p.machinesMu.RLock()
	cached := p.machines
	p.machinesMu.RUnlock()
	if unit, ok := findUnit(cached, unitID); ok {
		return unit, nil
	}

	units, err := p.Machines(ctx)
	if err != nil {
		return models.EquipmentUnit{}, fmt.Errorf("pipeline: load catalog: %w", err)
	}
	if unit, ok := findUnit(units, unitID); ok {
		return unit, nil
	}
	return models.EquipmentUnit{}, ErrUnknownUnit
}

func (p *Pipeline) onOpen() {
	p.mu.Lock()
	recovered := p.degraded
	p.degraded = false
	p.mu.Unlock()
	if recovered {
		p.publishAlert(SeverityInfo, "connection restored")
	}
}

func (p *Pipeline) onRetry(attempt int, delay time.Duration) {
	p.recorder.ReconnectScheduled()
	p.mu.Lock()
	p.degraded = true
	p.mu.Unlock()
	p.publishAlert(SeverityWarning, fmt.Sprintf("connection interrupted, reconnecting in %s (attempt %d)", delay, attempt))
}

func (p *Pipeline) onExhausted(err error) {
	p.logger.Error("telemetry stream unavailable", zap.Error(err))
	p.publishAlert(SeverityFatal, MessageConnectionLost)
}

func (p *Pipeline) onState(s stream.State) {
	p.recorder.StreamState(s)
	p.state.Publish(s)
}

func (p *Pipeline) publishAlert(severity Severity, message string) {
	p.alerts.Publish(Alert{Severity: severity, Message: message, At: p.now()})
}

// spawn runs fn in the background unless the pipeline is stopped.
func (p *Pipeline) spawn(fn func(ctx context.Context)) {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.stopped {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn(p.ctx)
	}()
}

func (p *Pipeline) isStopped() bool {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	return p.stopped
}

func findUnit(units []models.EquipmentUnit, id int64) (models.EquipmentUnit, bool) {
	for _, u := range units {
		if u.ID == id {
			return u, true
		}
	}
	return models.EquipmentUnit{}, false
}

func sameOrderInfo(a, b models.OrderInfo) bool {
	return a.SameOrder(b) &&
		a.ProcessOrderNumber == b.ProcessOrderNumber &&
		a.MaterialNumber == b.MaterialNumber
}

type nopRecorder struct{}

func (nopRecorder) FrameReceived()           {}
func (nopRecorder) FrameRejected()           {}
func (nopRecorder) FrameIgnored(string)      {}
func (nopRecorder) EventDropped(string)      {}
func (nopRecorder) ReconnectScheduled()      {}
func (nopRecorder) StreamState(stream.State) {}
func (nopRecorder) ParetoRecomputed()        {}
