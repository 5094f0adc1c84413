package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-insights/internal/utils"
)

func validFinance() *DomainData {
	return &DomainData{
		Domain: DomainFinance,
		UserID: "u1",
		Finance: &FinancialMetrics{
			Currency:    "USD",
			CashBalance: decimal.NewFromInt(100),
			NetCashFlow: NewMetricSeries("net_cash_flow", 1, 2, 3),
		},
	}
}

func TestDomain_IsValid(t *testing.T) {
	for _, d := range AllDomains() {
		assert.True(t, d.IsValid(), d)
	}
	assert.False(t, Domain("payroll").IsValid())
	assert.False(t, Domain("").IsValid())
}

func TestDomainData_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *DomainData)
		wantErr bool
	}{
		{"valid", func(*DomainData) {}, false},
		{"unknown domain", func(d *DomainData) { d.Domain = "payroll" }, true},
		{"no variant", func(d *DomainData) { d.Finance = nil }, true},
		{"two variants", func(d *DomainData) {
			d.Customer = &CustomerMetrics{Customers: []CustomerRecord{{ID: "c1"}}}
		}, true},
		{"variant does not match domain", func(d *DomainData) { d.Domain = DomainCustomer }, true},
		{"empty cash flow", func(d *DomainData) { d.Finance.NetCashFlow = MetricSeries{} }, true},
		{"non-finite sample", func(d *DomainData) { d.Finance.NetCashFlow.Values[1] = math.Inf(-1) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validFinance()
			tt.mutate(d)
			err := d.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, utils.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	var nilData *DomainData
	assert.ErrorIs(t, nilData.Validate(), utils.ErrValidation)
}

func TestVariantValidation(t *testing.T) {
	tests := []struct {
		name string
		data DomainData
	}{
		{"inventory without sku", DomainData{Domain: DomainInventory, Inventory: &InventoryMetrics{Items: []InventoryItem{{OnHand: 1}}}}},
		{"inventory negative stock", DomainData{Domain: DomainInventory, Inventory: &InventoryMetrics{Items: []InventoryItem{{SKU: "a", OnHand: -1}}}}},
		{"marketing without channels", DomainData{Domain: DomainMarketing, Marketing: &MarketingMetrics{}}},
		{"marketing empty path", DomainData{Domain: DomainMarketing, Marketing: &MarketingMetrics{
			Channels:    []ChannelMetrics{{Name: "search"}},
			Conversions: []Conversion{{Value: 10}},
		}}},
		{"operations zero capacity", DomainData{Domain: DomainOperations, Operations: &OperationsMetrics{Stages: []StageMetrics{{Name: "pick"}}}}},
		{"customer without id", DomainData{Domain: DomainCustomer, Customer: &CustomerMetrics{Customers: []CustomerRecord{{Segment: "vip"}}}}},
		{"customer negative history", DomainData{Domain: DomainCustomer, Customer: &CustomerMetrics{Customers: []CustomerRecord{{ID: "c", OrderCount: -1}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.data.Validate(), utils.ErrValidation)
		})
	}
}

func TestMetricSeries(t *testing.T) {
	s := NewMetricSeries("sales", 1, 2, 3.5)
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.IsEmpty())
	assert.Equal(t, 6.5, s.Sum())
	last, ok := s.Last()
	assert.True(t, ok)
	assert.Equal(t, 3.5, last)

	_, ok = MetricSeries{}.Last()
	assert.False(t, ok)

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Timestamps = []time.Time{t0, t0.Add(time.Hour), t0.Add(2 * time.Hour)}
	assert.NoError(t, s.Validate())

	s.Timestamps = []time.Time{t0, t0}
	assert.ErrorIs(t, s.Validate(), utils.ErrValidation)

	s.Timestamps = []time.Time{t0, t0.Add(-time.Hour), t0}
	assert.ErrorIs(t, s.Validate(), utils.ErrValidation)
}

func TestTimeWindow(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	w := LastDays(now, 30)
	assert.NoError(t, w.Validate())
	assert.Equal(t, now, w.To)
	assert.Equal(t, 30*24*time.Hour, w.Duration())

	assert.ErrorIs(t, TimeWindow{}.Validate(), utils.ErrValidation)
	assert.ErrorIs(t, TimeWindow{From: now, To: now}.Validate(), utils.ErrValidation)
}

func TestFinding_Validate(t *testing.T) {
	valid := Finding{
		Domain:         DomainInventory,
		Category:       CategoryOverstock,
		Subject:        "sku",
		Title:          "trim",
		Severity:       0.5,
		ImpactType:     ImpactCost,
		FieldsExpected: 2,
		FieldsPresent:  1,
	}
	require.NoError(t, valid.Validate())
	assert.Equal(t, 0.5, valid.Completeness())

	missing := Finding{Severity: 0.5}
	err := missing.Validate()
	require.ErrorIs(t, err, utils.ErrValidation)
	for _, field := range []string{"domain", "category", "subject", "title", "impact_type", "fields_expected"} {
		assert.Contains(t, err.Error(), field)
	}

	tests := []struct {
		name   string
		mutate func(f *Finding)
	}{
		{"severity above one", func(f *Finding) { f.Severity = 1.01 }},
		{"negative severity", func(f *Finding) { f.Severity = -0.1 }},
		{"nan severity", func(f *Finding) { f.Severity = math.NaN() }},
		{"infinite impact", func(f *Finding) { f.ExpectedImpact = math.Inf(1) }},
		{"nan sample", func(f *Finding) { f.ImpactSamples = []float64{1, math.NaN()} }},
		{"negative sample size", func(f *Finding) { f.SampleSize = -1 }},
		{"too many fields present", func(f *Finding) { f.FieldsPresent = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid
			tt.mutate(&f)
			assert.ErrorIs(t, f.Validate(), utils.ErrValidation)
		})
	}
}

func TestUrgencyFactor(t *testing.T) {
	assert.Equal(t, 1.5, UrgencyImmediate.Factor())
	assert.Equal(t, 1.25, UrgencyHigh.Factor())
	assert.Equal(t, 1.0, UrgencyNormal.Factor())
	assert.Equal(t, 1.0, Urgency("").Factor())
	assert.Equal(t, 0.75, UrgencyLow.Factor())
}

func TestPriorityRank(t *testing.T) {
	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Zero(t, Priority("urgent").Rank())
}

func TestDomainError(t *testing.T) {
	cause := errors.New("ledger offline")
	err := &DomainError{Domain: DomainFinance, Kind: ErrorKindPermanent, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "finance fetch failed (permanent): ledger offline", err.Error())

	raw, marshalErr := json.Marshal(err)
	require.NoError(t, marshalErr)
	assert.JSONEq(t, `{"domain":"finance","kind":"permanent","message":"ledger offline"}`, string(raw))
}

func TestAggregatedView(t *testing.T) {
	view := &AggregatedView{
		UserID: "u1",
		PerDomainResult: map[Domain]DomainResult{
			DomainCustomer:  {Data: &DomainData{Domain: DomainCustomer}, Attempts: 1},
			DomainFinance:   {Err: &DomainError{Domain: DomainFinance, Kind: ErrorKindTransient}, Attempts: 4},
			DomainInventory: {Data: &DomainData{Domain: DomainInventory}, Attempts: 2},
		},
		PartialFailure: true,
	}

	succeeded := view.Succeeded()
	require.Len(t, succeeded, 2)
	assert.Equal(t, DomainInventory, succeeded[0].Domain)
	assert.Equal(t, DomainCustomer, succeeded[1].Domain)
	assert.Equal(t, []Domain{DomainFinance}, view.Failed())

	assert.False(t, DomainResult{}.OK(), "a result with neither data nor error is not ok")
}
