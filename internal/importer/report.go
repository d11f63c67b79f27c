package importer

import (
	"encoding/json"
	"sync"
)

// Report accumulates the outcome of one import: rows written per entity in
// first-seen order, the entities created and free-form diagnostics.
type Report struct {
	mu          sync.Mutex
	order       []string
	counts      map[string]int
	newEntities []string
	diagnostics []string
}

// EntityCount is one line of the per-entity tally.
type EntityCount struct {
	Entity string `json:"entity"`
	Count  int    `json:"count"`
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{counts: make(map[string]int)}
}

// AddEntityCount adds n rows to the tally of entity.
func (r *Report) AddEntityCount(entity string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.counts[entity]; !ok {
		r.order = append(r.order, entity)
	}
	r.counts[entity] += n
}

// AddNewEntity records that entity was created by this import.
func (r *Report) AddNewEntity(entity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.newEntities = append(r.newEntities, entity)
}

// AddDiagnostic appends a message shown alongside the counts.
func (r *Report) AddDiagnostic(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, msg)
}

// EntityCount returns the rows written for entity.
func (r *Report) EntityCount(entity string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[entity]
}

// Counts returns the tally in first-seen order.
func (r *Report) Counts() []EntityCount {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EntityCount, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, EntityCount{Entity: name, Count: r.counts[name]})
	}
	return out
}

// Total returns the sum of all entity counts.
func (r *Report) Total() int {
	total := 0
	for _, c := range r.Counts() {
		total += c.Count
	}
	return total
}

// NewEntities returns the names of entities created by this import.
func (r *Report) NewEntities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.newEntities...)
}

// Diagnostics returns the recorded messages.
func (r *Report) Diagnostics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.diagnostics...)
}

type reportJSON struct {
	Counts      []EntityCount `json:"counts"`
	NewEntities []string      `json:"newEntities,omitempty"`
	Diagnostics []string      `json:"diagnostics,omitempty"`
}

// MarshalJSON renders the report for archives and CLI output.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{Counts: r.Counts(), NewEntities: r.NewEntities(), Diagnostics: r.Diagnostics()})
}
