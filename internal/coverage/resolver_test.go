package coverage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/atelierops/fulfillment/internal/cache/rediscache"
	"github.com/atelierops/fulfillment/internal/coverage"
	"github.com/atelierops/fulfillment/internal/models"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	rows  map[string][]models.Coverage
	err   error
	calls int
}

func (f *fakeSource) ListCoverage(ctx context.Context, orgID string) ([]models.Coverage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[orgID], nil
}

func testRows() []models.Coverage {
	return []models.Coverage{
		{OrgID: "org-1", Municipality: "BOGOTA", Department: "DC", Coordinadora: true, PostalCode: "110111"},
		{OrgID: "org-1", Municipality: "Medellín", Department: "Antioquia", Coordinadora: true, Interrapidisimo: true, Deprisa: true, PriorityCarrier: "deprisa", PostalCode: "050001"},
		{OrgID: "org-1", Municipality: "San José del Guaviare", Department: "Guaviare", Interrapidisimo: true, PostalCode: "950001"},
		{OrgID: "org-1", Municipality: "Santa Rosa", Department: "Bolívar", Deprisa: true, PostalCode: "131030"},
		{OrgID: "org-1", Municipality: "Santa Rosa", Department: "Cauca", Interrapidisimo: true, PostalCode: "194070"},
	}
}

func newResolver(src *fakeSource) *coverage.Resolver {
	return coverage.NewResolver(src, nil, time.Minute, nil)
}

func TestResolveCarrier_CoverageFlag(t *testing.T) {
	r := newResolver(&fakeSource{rows: map[string][]models.Coverage{"org-1": testRows()}})

	sel, err := r.ResolveCarrier(context.Background(), "org-1", "BOGOTA", "", "")

	require.NoError(t, err)
	assert.Equal(t, shipping.CarrierCoordinadora, sel.Carrier)
	assert.Equal(t, "110111", sel.PostalCode)
	assert.Equal(t, coverage.SourceCoverage, sel.Source)
}

func TestResolveCarrier_PriorityCarrierWins(t *testing.T) {
	r := newResolver(&fakeSource{rows: map[string][]models.Coverage{"org-1": testRows()}})

	for i := 0; i < 5; i++ {
		sel, err := r.ResolveCarrier(context.Background(), "org-1", "medellin", "ANTIOQUIA", "")
		require.NoError(t, err)
		assert.Equal(t, shipping.CarrierDeprisa, sel.Carrier)
		assert.Equal(t, coverage.SourcePriority, sel.Source)
	}
}

func TestSelect_PriorityIndependentOfFlagOrder(t *testing.T) {
	rows := []models.Coverage{
		{Municipality: "X", Deprisa: true, Interrapidisimo: true, Coordinadora: true, PriorityCarrier: "deprisa"},
		{Municipality: "X", Coordinadora: true, Deprisa: true, Interrapidisimo: true, PriorityCarrier: "DEPRISA"},
	}
	for i := range rows {
		assert.Equal(t, shipping.CarrierDeprisa, coverage.Select(&rows[i], "").Carrier)
	}
}

func TestResolveCarrier_ExplicitCarrierWins(t *testing.T) {
	r := newResolver(&fakeSource{rows: map[string][]models.Coverage{"org-1": testRows()}})

	sel, err := r.ResolveCarrier(context.Background(), "org-1", "Medellin", "", shipping.CarrierInterrapidisimo)

	require.NoError(t, err)
	assert.Equal(t, shipping.CarrierInterrapidisimo, sel.Carrier)
	assert.Equal(t, coverage.SourceExplicit, sel.Source)
	assert.Equal(t, "050001", sel.PostalCode)
}

func TestResolveCarrier_NoMatchFallsBackToDefault(t *testing.T) {
	r := newResolver(&fakeSource{rows: map[string][]models.Coverage{"org-1": testRows()}})

	sel, err := r.ResolveCarrier(context.Background(), "org-1", "Leticia", "Amazonas", "")

	require.NoError(t, err)
	assert.Equal(t, shipping.DefaultCarrier, sel.Carrier)
	assert.Empty(t, sel.PostalCode)
	assert.Equal(t, coverage.SourceDefault, sel.Source)
	assert.Nil(t, sel.Matched)
}

func TestResolveCarrier_EmptyCity(t *testing.T) {
	r := newResolver(&fakeSource{rows: map[string][]models.Coverage{"org-1": testRows()}})

	sel, err := r.ResolveCarrier(context.Background(), "org-1", "  ", "", "")

	require.NoError(t, err)
	assert.Equal(t, shipping.DefaultCarrier, sel.Carrier)
	assert.Empty(t, sel.PostalCode)
}

func TestResolveCarrier_SourceFailureDegrades(t *testing.T) {
	r := newResolver(&fakeSource{err: errors.New("connection reset")})

	sel, err := r.ResolveCarrier(context.Background(), "org-1", "BOGOTA", "", "")

	require.NoError(t, err)
	assert.Equal(t, shipping.DefaultCarrier, sel.Carrier)
	assert.Empty(t, sel.PostalCode)
}

func TestResolveCarrier_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newResolver(&fakeSource{err: context.Canceled})

	_, err := r.ResolveCarrier(ctx, "org-1", "BOGOTA", "", "")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatch_PartialAndAccents(t *testing.T) {
	rows := testRows()

	m := coverage.Match(rows, "Bogotá D.C.", "")
	require.NotNil(t, m)
	assert.Equal(t, "BOGOTA", m.Municipality)

	m = coverage.Match(rows, "san jose del guaviare", "")
	require.NotNil(t, m)
	assert.Equal(t, "950001", m.PostalCode)

	m = coverage.Match(rows, "MEDELLIN - ANTIOQUIA", "")
	require.NotNil(t, m)
	assert.Equal(t, "050001", m.PostalCode)
}

func TestMatch_DepartmentBreaksTies(t *testing.T) {
	rows := testRows()

	m := coverage.Match(rows, "Santa Rosa", "cauca")
	require.NotNil(t, m)
	assert.Equal(t, "194070", m.PostalCode)

	m = coverage.Match(rows, "Santa Rosa", "")
	require.NotNil(t, m)
	assert.Equal(t, "131030", m.PostalCode, "first row wins without a department")
}

func TestMatch_ExactBeatsPartial(t *testing.T) {
	rows := []models.Coverage{
		{Municipality: "Santa Rosa de Osos", PostalCode: "1"},
		{Municipality: "Santa Rosa", PostalCode: "2"},
	}

	m := coverage.Match(rows, "SANTA ROSA", "")
	require.NotNil(t, m)
	assert.Equal(t, "2", m.PostalCode)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "bogota d c", coverage.Normalize("  Bogotá, D.C. "))
	assert.Equal(t, "medellin", coverage.Normalize("MEDELLÍN"))
	assert.Equal(t, "", coverage.Normalize("--"))
}

func TestResolver_UsesRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := rediscache.New(mr.Addr())
	src := &fakeSource{rows: map[string][]models.Coverage{"org-1": testRows()}}
	r := coverage.NewResolver(src, cache, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sel, err := r.ResolveCarrier(ctx, "org-1", "BOGOTA", "", "")
		require.NoError(t, err)
		assert.Equal(t, shipping.CarrierCoordinadora, sel.Carrier)
	}
	assert.Equal(t, 1, src.calls)
	assert.True(t, mr.Exists("coverage:org-1"))

	require.NoError(t, r.Invalidate(ctx, "org-1"))
	_, err := r.ResolveCarrier(ctx, "org-1", "BOGOTA", "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}
