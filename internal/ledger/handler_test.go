package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian-wms/internal/catalog"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

type stubCatalogPort struct {
	warehouses map[int64]catalog.Warehouse
	categories map[int64]catalog.Category
	minStock   map[[2]int64]int
	policies   []catalog.StockPolicy
}

func newStubCatalogPort() *stubCatalogPort {
	return &stubCatalogPort{
		warehouses: map[int64]catalog.Warehouse{2: {ID: 2, Name: "Kho Trung Tâm", IsActive: true}},
		categories: map[int64]catalog.Category{5: {ID: 5, Name: "Đồ uống"}},
		minStock:   map[[2]int64]int{},
	}
}

func (c *stubCatalogPort) GetWarehouse(ctx context.Context, id int64) (catalog.Warehouse, error) {
	w, ok := c.warehouses[id]
	if !ok {
		return catalog.Warehouse{}, shared.NotFoundf("warehouse %d", id)
	}
	return w, nil
}

func (c *stubCatalogPort) GetCategory(ctx context.Context, id int64) (catalog.Category, error) {
	cat, ok := c.categories[id]
	if !ok {
		return catalog.Category{}, shared.NotFoundf("category %d", id)
	}
	return cat, nil
}

func (c *stubCatalogPort) MinStock(ctx context.Context, warehouseID, productID int64) (int, error) {
	if v, ok := c.minStock[[2]int64{warehouseID, productID}]; ok {
		return v, nil
	}
	return catalog.DefaultMinStock, nil
}

func (c *stubCatalogPort) SetMinStock(ctx context.Context, policy catalog.StockPolicy) error {
	c.policies = append(c.policies, policy)
	c.minStock[[2]int64{policy.WarehouseID, policy.ProductID}] = policy.MinStock
	return nil
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func newTestLedgerRouter(repo *memoryLedgerRepo, cat *stubCatalogPort) *chi.Mux {
	h := NewHandler(NewService(repo), cat)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestGetPolicyResolvesEffectiveThreshold(t *testing.T) {
	cat := newStubCatalogPort()
	cat.minStock[[2]int64{2, 1}] = 25
	router := newTestLedgerRouter(&memoryLedgerRepo{}, cat)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/policies?warehouse_id=2&product_id=1", nil))
	require.Equal(t, 200, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, 25, body["min_stock"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/policies?warehouse_id=2&product_id=9", nil))
	require.Equal(t, 200, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, catalog.DefaultMinStock, body["min_stock"])
}

func TestGetPolicyRequiresBothIDs(t *testing.T) {
	router := newTestLedgerRouter(&memoryLedgerRepo{}, newStubCatalogPort())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/policies?warehouse_id=2", nil))
	require.Equal(t, 400, rec.Code)
}

func TestSetThenGetPolicyRoundTrip(t *testing.T) {
	cat := newStubCatalogPort()
	router := newTestLedgerRouter(&memoryLedgerRepo{}, cat)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/policies", jsonBody(t, map[string]any{
		"warehouse_id": 2, "product_id": 1, "min_stock": 40,
	}))
	router.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	require.Len(t, cat.policies, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/policies?warehouse_id=2&product_id=1", nil))
	require.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, 40, body["min_stock"])
}

func TestReportIncludesCategoryWhenFiltered(t *testing.T) {
	repo := &memoryLedgerRepo{report: []ReportRow{
		{ProductID: 1, ProductCode: "SP001", WarehouseID: 2, QuantityBase: 50, MinStock: 10},
	}}
	router := newTestLedgerRouter(repo, newStubCatalogPort())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/report?warehouse_id=2&category_id=5", nil))
	require.Equal(t, 200, rec.Code)

	var body struct {
		Category *catalog.Category `json:"category"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Category)
	require.Equal(t, "Đồ uống", body.Category.Name)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/report?warehouse_id=2&category_id=99", nil))
	require.Equal(t, 404, rec.Code)
}
