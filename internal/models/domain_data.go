package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-insights/internal/utils"
)

// Domain identifies a business area that supplies metrics.
type Domain string

const (
	DomainInventory  Domain = "inventory"
	DomainMarketing  Domain = "marketing"
	DomainOperations Domain = "operations"
	DomainFinance    Domain = "finance"
	DomainCustomer   Domain = "customer"
)

// AllDomains lists every supported domain in display order.
func AllDomains() []Domain {
	return []Domain{DomainInventory, DomainMarketing, DomainOperations, DomainFinance, DomainCustomer}
}

// IsValid reports whether d is a known domain.
func (d Domain) IsValid() bool {
	switch d {
	case DomainInventory, DomainMarketing, DomainOperations, DomainFinance, DomainCustomer:
		return true
	}
	return false
}

// DomainData is a tagged union: Domain selects which one variant is set.
type DomainData struct {
	Domain     Domain             `json:"domain"`
	UserID     string             `json:"user_id"`
	CapturedAt time.Time          `json:"captured_at"`
	Inventory  *InventoryMetrics  `json:"inventory,omitempty"`
	Marketing  *MarketingMetrics  `json:"marketing,omitempty"`
	Operations *OperationsMetrics `json:"operations,omitempty"`
	Finance    *FinancialMetrics  `json:"finance,omitempty"`
	Customer   *CustomerMetrics   `json:"customer,omitempty"`
}

// Validate enforces that exactly the variant named by Domain is present
// and that the variant itself is well formed.
func (d *DomainData) Validate() error {
	if d == nil {
		return utils.NewValidationError("", "domain data is nil")
	}
	if !d.Domain.IsValid() {
		return utils.NewValidationErrorf("domain", "unknown domain %q", d.Domain)
	}

	set := 0
	for _, present := range []bool{d.Inventory != nil, d.Marketing != nil, d.Operations != nil, d.Finance != nil, d.Customer != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return utils.NewValidationErrorf("domain", "expected exactly one payload variant, found %d", set)
	}

	switch d.Domain {
	case DomainInventory:
		if d.Inventory == nil {
			return variantMismatch(d.Domain)
		}
		return d.Inventory.Validate()
	case DomainMarketing:
		if d.Marketing == nil {
			return variantMismatch(d.Domain)
		}
		return d.Marketing.Validate()
	case DomainOperations:
		if d.Operations == nil {
			return variantMismatch(d.Domain)
		}
		return d.Operations.Validate()
	case DomainFinance:
		if d.Finance == nil {
			return variantMismatch(d.Domain)
		}
		return d.Finance.Validate()
	case DomainCustomer:
		if d.Customer == nil {
			return variantMismatch(d.Domain)
		}
		return d.Customer.Validate()
	}
	return variantMismatch(d.Domain)
}

func variantMismatch(d Domain) error {
	return utils.NewValidationErrorf("domain", "payload does not match domain %q", d)
}

// InventoryItem is one SKU's stock position.
type InventoryItem struct {
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	OnHand        float64         `json:"on_hand"`
	DailyVelocity MetricSeries    `json:"daily_velocity"`
	LeadTimeDays  float64         `json:"lead_time_days"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// InventoryMetrics holds the stock snapshot for the inventory domain.
type InventoryMetrics struct {
	Items []InventoryItem `json:"items"`
}

func (m *InventoryMetrics) Validate() error {
	if len(m.Items) == 0 {
		return utils.NewValidationError("inventory.items", "at least one item is required")
	}
	for i, item := range m.Items {
		if item.SKU == "" {
			return utils.NewValidationErrorf("inventory.items", "item %d has no sku", i)
		}
		if item.OnHand < 0 || item.LeadTimeDays < 0 {
			return utils.NewValidationErrorf("inventory.items", "item %s has negative stock or lead time", item.SKU)
		}
		if err := item.DailyVelocity.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ChannelMetrics is spend and attributed revenue for one marketing channel.
type ChannelMetrics struct {
	Name    string       `json:"name"`
	Spend   MetricSeries `json:"spend"`
	Revenue MetricSeries `json:"revenue"`
}

// Conversion is a converting customer journey; Path is ordered first
// touch to last touch.
type Conversion struct {
	Path  []string `json:"path"`
	Value float64  `json:"value"`
}

// MarketingMetrics holds channel performance and conversion paths.
type MarketingMetrics struct {
	Channels     []ChannelMetrics `json:"channels"`
	Conversions  []Conversion     `json:"conversions,omitempty"`
	TotalRevenue MetricSeries     `json:"total_revenue"`
}

func (m *MarketingMetrics) Validate() error {
	if len(m.Channels) == 0 {
		return utils.NewValidationError("marketing.channels", "at least one channel is required")
	}
	for _, ch := range m.Channels {
		if ch.Name == "" {
			return utils.NewValidationError("marketing.channels", "channel name is required")
		}
		if err := ch.Spend.Validate(); err != nil {
			return err
		}
		if err := ch.Revenue.Validate(); err != nil {
			return err
		}
	}
	for i, c := range m.Conversions {
		if len(c.Path) == 0 {
			return utils.NewValidationErrorf("marketing.conversions", "conversion %d has an empty path", i)
		}
	}
	return m.TotalRevenue.Validate()
}

// StageMetrics describes one operational stage (picking, packing, ...).
type StageMetrics struct {
	Name     string       `json:"name"`
	Capacity float64      `json:"capacity"`
	Load     MetricSeries `json:"load"`
}

// OperationsMetrics holds per-stage load against capacity.
type OperationsMetrics struct {
	Stages []StageMetrics `json:"stages"`
}

func (m *OperationsMetrics) Validate() error {
	if len(m.Stages) == 0 {
		return utils.NewValidationError("operations.stages", "at least one stage is required")
	}
	for _, st := range m.Stages {
		if st.Name == "" {
			return utils.NewValidationError("operations.stages", "stage name is required")
		}
		if st.Capacity <= 0 {
			return utils.NewValidationErrorf("operations.stages", "stage %s capacity must be positive", st.Name)
		}
		if err := st.Load.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FinancialMetrics holds the cash position and per-period net cash flow.
type FinancialMetrics struct {
	Currency    string          `json:"currency"`
	CashBalance decimal.Decimal `json:"cash_balance"`
	NetCashFlow MetricSeries    `json:"net_cash_flow"`
}

func (m *FinancialMetrics) Validate() error {
	if m.NetCashFlow.IsEmpty() {
		return utils.NewValidationError("finance.net_cash_flow", "at least one period is required")
	}
	return m.NetCashFlow.Validate()
}

// CustomerRecord is the purchase history summary of one customer.
type CustomerRecord struct {
	ID                 string          `json:"id"`
	Segment            string          `json:"segment"`
	DaysSinceLastOrder float64         `json:"days_since_last_order"`
	AvgOrderInterval   float64         `json:"avg_order_interval_days"`
	OrderCount         int             `json:"order_count"`
	TotalSpend         decimal.Decimal `json:"total_spend"`
	TenureDays         float64         `json:"tenure_days"`
}

// CustomerMetrics holds the customer base snapshot.
type CustomerMetrics struct {
	Customers []CustomerRecord `json:"customers"`
}

func (m *CustomerMetrics) Validate() error {
	if len(m.Customers) == 0 {
		return utils.NewValidationError("customer.customers", "at least one customer is required")
	}
	for i, c := range m.Customers {
		if c.ID == "" {
			return utils.NewValidationErrorf("customer.customers", "customer %d has no id", i)
		}
		if c.OrderCount < 0 || c.DaysSinceLastOrder < 0 {
			return utils.NewValidationError("customer.customers", fmt.Sprintf("customer %s has negative history", c.ID))
		}
	}
	return nil
}
