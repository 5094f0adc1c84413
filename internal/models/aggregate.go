package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ErrorKind classifies why a domain fetch failed.
type ErrorKind string

const (
	ErrorKindTransient ErrorKind = "transient"
	ErrorKindPermanent ErrorKind = "permanent"
)

// DomainError is the failure half of a per-domain result.
type DomainError struct {
	Domain Domain    `json:"domain"`
	Kind   ErrorKind `json:"kind"`
	Err    error     `json:"-"`
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s fetch failed (%s): %v", e.Domain, e.Kind, e.Err)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the wrapped error as a message.
func (e *DomainError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Domain  Domain    `json:"domain"`
		Kind    ErrorKind `json:"kind"`
		Message string    `json:"message"`
	}{e.Domain, e.Kind, msg})
}

// DomainResult holds either data or an error for one domain.
type DomainResult struct {
	Data     *DomainData  `json:"data,omitempty"`
	Err      *DomainError `json:"error,omitempty"`
	Attempts int          `json:"attempts"`
}

// OK reports whether the fetch succeeded.
func (r DomainResult) OK() bool {
	return r.Err == nil && r.Data != nil
}

// AggregatedView is the merged cross-domain result for one user and
// window. It is built fresh per request and not mutated after return.
type AggregatedView struct {
	UserID          string                  `json:"user_id"`
	Window          TimeWindow              `json:"window"`
	PerDomainResult map[Domain]DomainResult `json:"per_domain_result"`
	PartialFailure  bool                    `json:"partial_failure"`
	GeneratedAt     time.Time               `json:"generated_at"`
}

// Succeeded returns the data of every successful domain in AllDomains order.
func (v *AggregatedView) Succeeded() []*DomainData {
	var out []*DomainData
	for _, d := range AllDomains() {
		if r, ok := v.PerDomainResult[d]; ok && r.OK() {
			out = append(out, r.Data)
		}
	}
	return out
}

// Failed returns the domains whose fetch ultimately failed.
func (v *AggregatedView) Failed() []Domain {
	var out []Domain
	for _, d := range AllDomains() {
		if r, ok := v.PerDomainResult[d]; ok && !r.OK() {
			out = append(out, d)
		}
	}
	return out
}
