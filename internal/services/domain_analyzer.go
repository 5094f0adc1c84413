package services

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/irfndi/celebrum-insights/internal/models"
)

// ErrDomainMismatch is returned when an analyzer receives data of another domain.
var ErrDomainMismatch = errors.New("domain data does not match analyzer")

// DomainAnalyzer turns one domain's metrics into findings. Analyzers assign
// raw severity only; ranking is left to the RecommendationEngine.
type DomainAnalyzer interface {
	Domain() models.Domain
	DetectRisks(data *models.DomainData) ([]models.Finding, error)
	ComputeEfficiency(data *models.DomainData) ([]models.Finding, error)
	RankOpportunities(data *models.DomainData) ([]models.Finding, error)
}

// RunAnalyzer validates data and collects risks, inefficiencies and
// opportunities from a, in that order.
func RunAnalyzer(a DomainAnalyzer, data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}
	if err := data.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s data: %w", data.Domain, err)
	}

	var findings []models.Finding
	steps := []struct {
		name string
		run  func(*models.DomainData) ([]models.Finding, error)
	}{
		{"detect risks", a.DetectRisks},
		{"compute efficiency", a.ComputeEfficiency},
		{"rank opportunities", a.RankOpportunities},
	}
	for _, step := range steps {
		found, err := step.run(data)
		if err != nil {
			return nil, fmt.Errorf("%s analyzer failed to %s: %w", a.Domain(), step.name, err)
		}
		findings = append(findings, found...)
	}
	return findings, nil
}

// DefaultAnalyzers returns one analyzer per domain with default settings.
func DefaultAnalyzers() map[models.Domain]DomainAnalyzer {
	return map[models.Domain]DomainAnalyzer{
		models.DomainInventory:  NewInventoryAnalyzer(InventoryAnalyzerConfig{}),
		models.DomainMarketing:  NewMarketingAnalyzer(MarketingAnalyzerConfig{}),
		models.DomainOperations: NewOperationsAnalyzer(OperationsAnalyzerConfig{}),
		models.DomainFinance:    NewFinancialAnalyzer(FinancialAnalyzerConfig{}),
		models.DomainCustomer:   NewCustomerAnalyzer(CustomerAnalyzerConfig{}),
	}
}

func checkDomain(want models.Domain, data *models.DomainData) error {
	if data == nil {
		return fmt.Errorf("%w: no data for %s", ErrDomainMismatch, want)
	}
	if data.Domain != want {
		return fmt.Errorf("%w: %s analyzer received %s data", ErrDomainMismatch, want, data.Domain)
	}
	return nil
}

// newFinding fills the fields every analyzer sets the same way.
func newFinding(domain models.Domain, category models.Category, kind models.FindingKind, subject, title string) models.Finding {
	return models.Finding{
		ID:       uuid.NewString(),
		Domain:   domain,
		Category: category,
		Kind:     kind,
		Subject:  subject,
		Title:    title,
		Urgency:  models.UrgencyNormal,
		Evidence: make(map[string]float64),
	}
}

func actions(steps ...string) []models.ActionStep {
	out := make([]models.ActionStep, len(steps))
	for i, s := range steps {
		out[i] = models.ActionStep{Order: i + 1, Description: s}
	}
	return out
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func countPresent(present ...bool) int {
	n := 0
	for _, p := range present {
		if p {
			n++
		}
	}
	return n
}

func scaleAll(values []float64, factor float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v * factor
	}
	return out
}
