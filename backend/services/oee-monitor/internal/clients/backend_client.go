package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"plantoee/backend/services/oee-monitor/internal/models"
)

const (
	pathWorkcenters = "/workcenters"
	pathPrepareOEE  = "/prepareOEE/oee/%d"
	pathMicrostops  = "/microstops"
)

// ErrNoRecordID is returned when the backend accepts a new microstop without
// reporting its id.
var ErrNoRecordID = errors.New("clients: backend returned no microstop id")

// BackendClient is the REST facade of the plant backend. Microstops are cached per
// order until a mutation for that order goes through the client.
type BackendClient struct {
	base   *BaseClient
	logger *zap.Logger

	mu    sync.Mutex
	cache map[int64][]models.MicrostopRecord
}

// NewBackendClient builds the client. apiKey is sent as x-api-key when non-empty.
func NewBackendClient(baseURL, apiKey string, httpClient HTTPDoer, retry RetryPolicy, logger *zap.Logger) *BackendClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	headers := map[string]string{}
	if apiKey != "" {
		headers["x-api-key"] = apiKey
	}
	return &BackendClient{
		base:   NewBaseClient(baseURL, httpClient, headers, retry, logger),
		logger: logger,
		cache:  make(map[int64][]models.MicrostopRecord),
	}
}

// FetchMachines returns the full work center catalog.
func (c *BackendClient) FetchMachines(ctx context.Context) ([]models.EquipmentUnit, error) {
	var units []models.EquipmentUnit
	if err := c.getJSON(ctx, pathWorkcenters, nil, &units); err != nil {
		return nil, fmt.Errorf("clients: fetch machines: %w", err)
	}
	return units, nil
}

// FetchPrepareOEEData returns the bootstrap payload of a unit.
func (c *BackendClient) FetchPrepareOEEData(ctx context.Context, unitID int64) (models.PrepareOEEData, error) {
	var data models.PrepareOEEData
	if err := c.getJSON(ctx, fmt.Sprintf(pathPrepareOEE, unitID), nil, &data); err != nil {
		return models.PrepareOEEData{}, fmt.Errorf("clients: fetch prepare oee %d: %w", unitID, err)
	}
	return data, nil
}

// FetchMicrostops returns the microstops of an order, from cache when possible.
func (c *BackendClient) FetchMicrostops(ctx context.Context, orderID int64) ([]models.MicrostopRecord, error) {
	c.mu.Lock()
	cached, ok := c.cache[orderID]
	c.mu.Unlock()
	if ok {
		return append([]models.MicrostopRecord(nil), cached...), nil
	}

	query := url.Values{"order_id": []string{strconv.FormatInt(orderID, 10)}}
	var records []models.MicrostopRecord
	if err := c.getJSON(ctx, pathMicrostops, query, &records); err != nil {
		return nil, fmt.Errorf("clients: fetch microstops for order %d: %w", orderID, err)
	}

	c.mu.Lock()
	c.cache[orderID] = append([]models.MicrostopRecord(nil), records...)
	c.mu.Unlock()
	return records, nil
}

// CreateMicrostop posts a new record and returns it as stored by the backend.
func (c *BackendClient) CreateMicrostop(ctx context.Context, rec models.MicrostopRecord) (models.MicrostopRecord, error) {
	out, err := c.sendRecord(ctx, http.MethodPost, pathMicrostops, rec)
	if err != nil {
		return models.MicrostopRecord{}, fmt.Errorf("clients: create microstop: %w", err)
	}
	c.InvalidateOrder(rec.OrderID)
	if out.ID == 0 {
		c.logger.Warn("microstop created without id", zap.Int64("order_id", rec.OrderID))
		return models.MicrostopRecord{}, ErrNoRecordID
	}
	return out, nil
}

// UpdateMicrostop replaces the record with rec.ID. The cache of the new order and of
// any order the record was cached under is invalidated.
func (c *BackendClient) UpdateMicrostop(ctx context.Context, rec models.MicrostopRecord) (models.MicrostopRecord, error) {
	out, err := c.sendRecord(ctx, http.MethodPut, fmt.Sprintf("%s/%d", pathMicrostops, rec.ID), rec)
	if err != nil {
		return models.MicrostopRecord{}, fmt.Errorf("clients: update microstop %d: %w", rec.ID, err)
	}
	c.invalidateRecord(rec.ID)
	c.InvalidateOrder(rec.OrderID)
	c.InvalidateOrder(out.OrderID)
	return out, nil
}

// DeleteMicrostop removes a record and invalidates the cache of its order.
func (c *BackendClient) DeleteMicrostop(ctx context.Context, orderID, id int64) error {
	if _, _, err := c.base.Do(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", pathMicrostops, id), nil, nil); err != nil {
		return fmt.Errorf("clients: delete microstop %d: %w", id, err)
	}
	c.InvalidateOrder(orderID)
	return nil
}

// InvalidateOrder drops the cached microstops of an order.
func (c *BackendClient) InvalidateOrder(orderID int64) {
	c.mu.Lock()
	delete(c.cache, orderID)
	c.mu.Unlock()
}

func (c *BackendClient) invalidateRecord(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for orderID, records := range c.cache {
		for _, r := range records {
			if r.ID == id {
				delete(c.cache, orderID)
				break
			}
		}
	}
}

// ClearCache drops every cached order.
func (c *BackendClient) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[int64][]models.MicrostopRecord)
	c.mu.Unlock()
}

func (c *BackendClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	_, body, err := c.base.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// sendRecord writes rec and decodes the echoed record. An empty body echoes rec,
// which leaves the id of a created record unknown.
func (c *BackendClient) sendRecord(ctx context.Context, method, path string, rec models.MicrostopRecord) (models.MicrostopRecord, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return models.MicrostopRecord{}, err
	}
	_, body, err := c.base.Do(ctx, method, path, nil, payload)
	if err != nil {
		return models.MicrostopRecord{}, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return rec, nil
	}
	var out models.MicrostopRecord
	if err := json.Unmarshal(body, &out); err != nil {
		return models.MicrostopRecord{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		return payload.Error
	}
	return ""
}
