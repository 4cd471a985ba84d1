package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantoee/backend/services/oee-monitor/internal/models"
	"plantoee/backend/services/oee-monitor/internal/observability"
	"plantoee/backend/services/oee-monitor/internal/selection"
	"plantoee/backend/services/oee-monitor/internal/stream"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func orderID(v int64) *int64 { return &v }

type fakeBackend struct {
	mu         sync.Mutex
	units      []models.EquipmentUnit
	prepare    map[int64]models.PrepareOEEData
	prepareErr error
	microstops map[int64][]models.MicrostopRecord
	nextID     int64
	fetches    []int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		units: []models.EquipmentUnit{
			{ID: 1, Name: "Press", OEEEnabled: true},
			{ID: 2, Name: "Saw"},
			{ID: 3, Name: "Lathe", OEEEnabled: true},
		},
		prepare:    map[int64]models.PrepareOEEData{},
		microstops: map[int64][]models.MicrostopRecord{},
		nextID:     100,
	}
}

func (f *fakeBackend) FetchMachines(context.Context) ([]models.EquipmentUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.EquipmentUnit(nil), f.units...), nil
}

func (f *fakeBackend) FetchPrepareOEEData(_ context.Context, unitID int64) (models.PrepareOEEData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prepareErr != nil {
		return models.PrepareOEEData{}, f.prepareErr
	}
	return f.prepare[unitID], nil
}

func (f *fakeBackend) FetchMicrostops(_ context.Context, order int64) ([]models.MicrostopRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, order)
	return append([]models.MicrostopRecord(nil), f.microstops[order]...), nil
}

func (f *fakeBackend) CreateMicrostop(_ context.Context, rec models.MicrostopRecord) (models.MicrostopRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec.ID = f.nextID
	f.microstops[rec.OrderID] = append(f.microstops[rec.OrderID], rec)
	return rec, nil
}

func (f *fakeBackend) UpdateMicrostop(_ context.Context, rec models.MicrostopRecord) (models.MicrostopRecord, error) {
	return rec, nil
}

func (f *fakeBackend) DeleteMicrostop(context.Context, int64, int64) error {
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	dropped map[string]int
	retries int
	states  []stream.State
}

func (r *fakeRecorder) FrameReceived()      {}
func (r *fakeRecorder) FrameRejected()      {}
func (r *fakeRecorder) FrameIgnored(string) {}
func (r *fakeRecorder) ParetoRecomputed()   {}

func (r *fakeRecorder) EventDropped(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dropped == nil {
		r.dropped = map[string]int{}
	}
	r.dropped[reason]++
}

func (r *fakeRecorder) ReconnectScheduled() {
	r.mu.Lock()
	r.retries++
	r.mu.Unlock()
}

func (r *fakeRecorder) StreamState(s stream.State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *fakeRecorder) droppedFor(reason string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped[reason]
}

type harness struct {
	p        *Pipeline
	clock    *stream.FakeClock
	dialer   *stream.FakeDialer
	backend  *fakeBackend
	recorder *fakeRecorder
	store    *selection.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    stream.NewFakeClock(),
		dialer:   stream.NewFakeDialer(),
		backend:  newFakeBackend(),
		recorder: &fakeRecorder{},
		store:    selection.NewMemoryStore(),
	}
	h.build()
	t.Cleanup(func() { h.p.Stop() })
	return h
}

func (h *harness) build() {
	h.p = New(Deps{
		URL:        "wss://telemetry.example",
		Dialer:     h.dialer,
		Clock:      h.clock,
		Policy:     stream.DefaultPolicy(),
		Catalog:    h.backend,
		Microstops: h.backend,
		Binder:     selection.NewBinder(h.store, nil),
		Recorder:   h.recorder,
		Now:        func() time.Time { return t0 },
	})
}

func (h *harness) start(t *testing.T) *stream.FakeConn {
	t.Helper()
	require.NoError(t, h.p.Start(context.Background()))
	require.True(t, h.clock.FireNext())
	conn := h.dialer.Last()
	require.NotNil(t, conn)
	return conn
}

func TestSelectedUnitEventsUpdateMetrics(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)

	unit, err := h.p.Select(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Press", unit.Name)

	conn.Push([]byte(`{"type":"OEEData","data":{"workcenter_id":1,"availability":0.9567,"performance":0.8,"quality":1.3,"oee":0.5}}`))

	require.Eventually(t, func() bool { return h.p.Metrics().Latest().Availability == 0.96 }, waitFor, tick)
	snap := h.p.Metrics().Latest()
	assert.Equal(t, int64(1), snap.UnitID)
	assert.Equal(t, 1.0, snap.Quality)
}

func TestOtherUnitEventsAreDropped(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)

	conn.Push([]byte(`{"type":"OEEData","data":{"workcenter_id":1,"oee":0.5}}`))
	require.Eventually(t, func() bool { return h.recorder.droppedFor(observability.DropNoSelection) == 1 }, waitFor, tick)

	_, err := h.p.Select(context.Background(), 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.p.Metrics().Latest().UpdatedAt.Equal(t0) }, waitFor, tick, "bootstrap seeded")
	before := h.p.Metrics().Latest()

	conn.Push([]byte(`{"type":"OEEData","data":{"workcenter_id":3,"oee":0.9}}`))
	require.Eventually(t, func() bool { return h.recorder.droppedFor(observability.DropOtherUnit) == 1 }, waitFor, tick)
	assert.Equal(t, before, h.p.Metrics().Latest())
}

func TestMalformedFrameDoesNotStopTheStream(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)
	_, err := h.p.Select(context.Background(), 1)
	require.NoError(t, err)

	conn.Push([]byte(`{"type":"OEEData",`))
	conn.Push([]byte(`{"type":"OEEData","data":{"workcenter_id":1,"oee":0.42}}`))

	require.Eventually(t, func() bool { return h.p.Metrics().Latest().OEE == 0.42 }, waitFor, tick)
	assert.Equal(t, stream.StateOpen, h.p.manager.State())
}

func TestSelectRejectsUntrackedUnit(t *testing.T) {
	h := newHarness(t)
	_, err := h.p.Select(context.Background(), 2)
	assert.ErrorIs(t, err, ErrUnknownUnit)
	_, err = h.p.Select(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestMachinesKeepsTrackedUnits(t *testing.T) {
	h := newHarness(t)
	units, err := h.p.Machines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.EquipmentUnit{
		{ID: 1, Name: "Press", OEEEnabled: true},
		{ID: 3, Name: "Lathe", OEEEnabled: true},
	}, units)
}

func TestBootstrapSeedsMetricsSeriesAndPareto(t *testing.T) {
	h := newHarness(t)
	h.backend.prepare[1] = models.PrepareOEEData{
		Availability: 0.9, Performance: 0.8, Quality: 0.95, OEE: 0.684,
		ProcessOrder: &models.ProcessOrder{OrderID: orderID(7), ProcessOrderNumber: "PO-7", MaterialNumber: "M-7"},
		Labels:       []string{"2024-05-01T06:00:00Z"},
		Datasets:     []models.Dataset{{Label: "Gut", Data: []float64{12}}},
	}
	h.backend.microstops[7] = []models.MicrostopRecord{
		{ID: 1, OrderID: 7, Reason: "Jam", StartTime: t0, EndTime: t0.Add(40 * time.Second)},
		{ID: 2, OrderID: 7, Reason: "Tool", StartTime: t0, EndTime: t0.Add(60 * time.Second)},
	}

	_, err := h.p.Select(context.Background(), 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(h.p.Pareto().Latest().Labels) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"Tool", "Jam"}, h.p.Pareto().Latest().Labels)
	assert.Equal(t, []float64{60, 100}, h.p.Pareto().Latest().Cumulative)
	assert.Equal(t, 0.68, h.p.Metrics().Latest().OEE)
	assert.Equal(t, "PO-7", h.p.Orders().Latest().ProcessOrderNumber)
	assert.Len(t, h.p.TimeSeries().Latest().Labels, 1)
}

func TestBootstrapFailureKeepsPriorValuesAndAlerts(t *testing.T) {
	h := newHarness(t)
	h.backend.prepareErr = errors.New("backend down")

	var mu sync.Mutex
	var alerts []Alert
	h.p.Alerts().Subscribe(func(a Alert) {
		mu.Lock()
		alerts = append(alerts, a)
		mu.Unlock()
	})

	_, err := h.p.Select(context.Background(), 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(alerts) == 1
	}, waitFor, tick)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)
	assert.Equal(t, models.MetricsSnapshot{UnitID: 1}, h.p.Metrics().Latest())
	assert.Equal(t, models.EmptyFrame(), h.p.TimeSeries().Latest())
}

func TestLiveOrderChangeReloadsMicrostops(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)
	h.backend.microstops[9] = []models.MicrostopRecord{
		{ID: 5, OrderID: 9, Reason: "Jam", StartTime: t0, EndTime: t0.Add(10 * time.Second)},
	}
	_, err := h.p.Select(context.Background(), 1)
	require.NoError(t, err)

	conn.Push([]byte(`{"type":"OEEData","data":{"workcenter_id":1,"oee":0.5,"order_id":9,"processordernumber":"PO-9"}}`))
	require.Eventually(t, func() bool { return len(h.p.Pareto().Latest().Labels) == 1 }, waitFor, tick)

	conn.Push([]byte(`{"type":"OEEData","data":{"workcenter_id":1,"oee":0.6,"order_id":9,"processordernumber":"PO-9"}}`))
	require.Eventually(t, func() bool { return h.p.Metrics().Latest().OEE == 0.6 }, waitFor, tick)

	h.backend.mu.Lock()
	assert.Equal(t, []int64{9}, h.backend.fetches, "same order does not reload")
	h.backend.mu.Unlock()

	conn.Push([]byte(`{"type":"OEEData","data":{"workcenter_id":1,"oee":0.7}}`))
	require.Eventually(t, func() bool { return len(h.p.Pareto().Latest().Labels) == 0 }, waitFor, tick)
	assert.Equal(t, models.NotAvailable, h.p.Orders().Latest().ProcessOrderNumber)
}

func TestMicrostopEditsRecomputePareto(t *testing.T) {
	h := newHarness(t)
	h.backend.prepare[1] = models.PrepareOEEData{ProcessOrder: &models.ProcessOrder{OrderID: orderID(7)}}
	h.backend.microstops[7] = []models.MicrostopRecord{
		{ID: 1, OrderID: 7, Reason: "Jam", StartTime: t0, EndTime: t0.Add(30 * time.Second)},
	}

	_, err := h.p.SaveMicrostop(context.Background(), models.MicrostopRecord{Reason: "Tool"})
	assert.ErrorIs(t, err, ErrNoActiveOrder)

	_, err = h.p.Select(context.Background(), 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(h.p.Pareto().Latest().Labels) == 1 }, waitFor, tick)

	saved, err := h.p.SaveMicrostop(context.Background(), models.MicrostopRecord{
		Reason: "Tool", StartTime: t0, EndTime: t0.Add(90 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), saved.OrderID)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, []string{"Tool", "Jam"}, h.p.Pareto().Latest().Labels)

	saved.EndTime = t0.Add(10 * time.Second)
	_, err = h.p.SaveMicrostop(context.Background(), saved)
	require.NoError(t, err)
	assert.Equal(t, []string{"Jam", "Tool"}, h.p.Pareto().Latest().Labels)

	require.NoError(t, h.p.DeleteMicrostop(context.Background(), saved.ID))
	assert.Equal(t, []string{"Jam"}, h.p.Pareto().Latest().Labels)
	assert.Len(t, h.p.Snapshot().Microstops, 1)
}

func TestMicrostopMovedToOtherOrderLeavesActiveSet(t *testing.T) {
	h := newHarness(t)
	h.backend.prepare[1] = models.PrepareOEEData{ProcessOrder: &models.ProcessOrder{OrderID: orderID(7)}}
	h.backend.microstops[7] = []models.MicrostopRecord{
		{ID: 1, OrderID: 7, Reason: "Jam", StartTime: t0, EndTime: t0.Add(30 * time.Second)},
		{ID: 2, OrderID: 7, Reason: "Tool", StartTime: t0, EndTime: t0.Add(90 * time.Second)},
	}

	_, err := h.p.Select(context.Background(), 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(h.p.Pareto().Latest().Labels) == 2 }, waitFor, tick)
	require.Equal(t, []string{"Tool", "Jam"}, h.p.Pareto().Latest().Labels)

	moved, err := h.p.SaveMicrostop(context.Background(), models.MicrostopRecord{
		ID: 2, OrderID: 8, Reason: "Tool", StartTime: t0, EndTime: t0.Add(90 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), moved.OrderID)

	assert.Equal(t, []string{"Jam"}, h.p.Pareto().Latest().Labels)
	assert.Equal(t, []float64{30}, h.p.Pareto().Latest().Values)
	require.Len(t, h.p.Snapshot().Microstops, 1)
	assert.Equal(t, int64(1), h.p.Snapshot().Microstops[0].ID)
}

func TestStartRestoresPersistedSelection(t *testing.T) {
	h := newHarness(t)
	_, err := h.p.Select(context.Background(), 3)
	require.NoError(t, err)
	h.p.Stop()

	h.build()
	h.start(t)
	unit, ok := h.p.Current()
	require.True(t, ok)
	assert.Equal(t, int64(3), unit.ID)
	require.NotNil(t, h.p.Snapshot().Selection)

	require.NoError(t, h.p.Deselect(context.Background()))
	h.p.Stop()

	h.build()
	h.start(t)
	_, ok = h.p.Current()
	assert.False(t, ok)
}

func TestExhaustionRaisesFatalAlertAndReconnectRecovers(t *testing.T) {
	h := newHarness(t)
	h.dialer.SetErr(errors.New("refused"))

	var mu sync.Mutex
	var alerts []Alert
	h.p.Alerts().Subscribe(func(a Alert) {
		mu.Lock()
		alerts = append(alerts, a)
		mu.Unlock()
	})

	require.NoError(t, h.p.Start(context.Background()))
	for h.clock.FireNext() {
	}

	mu.Lock()
	require.Len(t, alerts, 6)
	for _, a := range alerts[:5] {
		assert.Equal(t, SeverityWarning, a.Severity)
	}
	assert.Equal(t, SeverityFatal, alerts[5].Severity)
	assert.Equal(t, MessageConnectionLost, alerts[5].Message)
	mu.Unlock()
	assert.Equal(t, stream.StateExhausted, h.p.StreamState().Latest())
	h.recorder.mu.Lock()
	assert.Equal(t, 5, h.recorder.retries)
	h.recorder.mu.Unlock()

	h.dialer.SetErr(nil)
	require.NoError(t, h.p.Reconnect())
	require.True(t, h.clock.FireNext())
	assert.Equal(t, stream.StateOpen, h.p.StreamState().Latest())

	mu.Lock()
	last := alerts[len(alerts)-1]
	mu.Unlock()
	assert.Equal(t, "connection restored", last.Message)
}

func TestStopReleasesEverything(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)
	h.p.Metrics().Subscribe(func(models.MetricsSnapshot) {})
	h.p.Pareto().Subscribe(func(models.ParetoResult) {})

	h.p.Stop()
	h.p.Stop()

	assert.True(t, conn.IsClosed())
	assert.Empty(t, h.clock.Pending())
	assert.Zero(t, h.p.Metrics().Subscribers())
	assert.Zero(t, h.p.Pareto().Subscribers())
	assert.ErrorIs(t, h.p.Reconnect(), ErrStopped)
	assert.ErrorIs(t, h.p.Start(context.Background()), ErrStopped)
}
