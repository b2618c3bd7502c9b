// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"sync/atomic"
)

// Catalog is the immutable-after-load set of model profiles. All reads
// are safe for unsynchronized concurrent use; reloads build a new
// Catalog and swap it atomically through a CatalogHandle.
type Catalog struct {
	profiles []ModelProfile
	index    map[ModelRef]int

	// Observed blended-cost range across the catalog, used to normalize
	// the cost scoring term.
	minCost float64
	maxCost float64
}

// NewCatalog validates and builds a catalog. The load is all-or-nothing:
// a duplicate key, non-positive context window, missing cost, invalid
// subscore or unknown maturity tier fails the whole load.
func NewCatalog(profiles []ModelProfile) (*Catalog, error) {
	c := &Catalog{
		profiles: make([]ModelProfile, len(profiles)),
		index:    make(map[ModelRef]int, len(profiles)),
	}
	copy(c.profiles, profiles)

	for i, p := range c.profiles {
		if p.Ref.Provider == "" || p.Ref.Model == "" {
			return nil, &CatalogError{Ref: p.Ref, Message: "provider and model are required"}
		}
		if _, dup := c.index[p.Ref]; dup {
			return nil, &CatalogError{Ref: p.Ref, Message: "duplicate (provider, model) key"}
		}
		if p.ContextWindow <= 0 {
			return nil, &CatalogError{Ref: p.Ref, Message: "context window must be positive"}
		}
		if p.InputCostPerMTok < 0 || p.OutputCostPerMTok < 0 {
			return nil, &CatalogError{Ref: p.Ref, Message: "costs must be non-negative"}
		}
		if !p.Local && p.InputCostPerMTok == 0 && p.OutputCostPerMTok == 0 {
			return nil, &CatalogError{Ref: p.Ref, Message: "missing cost for hosted model"}
		}
		if p.CodingScore < 0 || p.CodingScore > 100 || p.ReasoningScore < 0 || p.ReasoningScore > 100 {
			return nil, &CatalogError{Ref: p.Ref, Message: "affinity subscores must be in [0,100]"}
		}
		if _, err := ParseMaturityTier(string(p.Maturity)); err != nil {
			return nil, &CatalogError{Ref: p.Ref, Message: err.Error()}
		}
		if p.Local && p.LocalSizeBytes <= 0 {
			return nil, &CatalogError{Ref: p.Ref, Message: "local model requires a positive resident size"}
		}
		for _, capability := range p.Capabilities {
			if _, err := ParseCapability(string(capability)); err != nil {
				return nil, &CatalogError{Ref: p.Ref, Message: err.Error()}
			}
		}
		c.index[p.Ref] = i

		cost := p.BlendedCost()
		if i == 0 || cost < c.minCost {
			c.minCost = cost
		}
		if cost > c.maxCost {
			c.maxCost = cost
		}
	}

	return c, nil
}

// Get returns the profile for (provider, model).
func (c *Catalog) Get(provider Provider, model string) (ModelProfile, bool) {
	i, ok := c.index[ModelRef{Provider: provider, Model: model}]
	if !ok {
		return ModelProfile{}, false
	}
	return c.profiles[i], true
}

// GetRef returns the profile for a model reference.
func (c *Catalog) GetRef(ref ModelRef) (ModelProfile, bool) {
	return c.Get(ref.Provider, ref.Model)
}

// All returns the profiles in stable load order. The returned slice is
// a copy; the catalog itself is never mutated.
func (c *Catalog) All() []ModelProfile {
	out := make([]ModelProfile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// Filter returns profiles matching the predicate, in stable load order.
func (c *Catalog) Filter(pred func(ModelProfile) bool) []ModelProfile {
	var out []ModelProfile
	for _, p := range c.profiles {
		if pred(p) {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of profiles.
func (c *Catalog) Len() int {
	return len(c.profiles)
}

// CostRange returns the observed blended-cost range.
func (c *Catalog) CostRange() (min, max float64) {
	return c.minCost, c.maxCost
}

// loadOrder returns the stable position of ref, for tie-breaking.
func (c *Catalog) loadOrder(ref ModelRef) int {
	if i, ok := c.index[ref]; ok {
		return i
	}
	return len(c.profiles)
}

// Providers returns the distinct providers in stable first-seen order.
func (c *Catalog) Providers() []Provider {
	seen := make(map[Provider]struct{})
	var out []Provider
	for _, p := range c.profiles {
		if _, ok := seen[p.Ref.Provider]; ok {
			continue
		}
		seen[p.Ref.Provider] = struct{}{}
		out = append(out, p.Ref.Provider)
	}
	return out
}

// CatalogHandle is the explicitly owned, shared reference to the
// current catalog. Hot reload is an atomic whole-set swap, never
// in-place mutation.
type CatalogHandle struct {
	current atomic.Pointer[Catalog]
}

// NewCatalogHandle creates a handle owning the given catalog.
func NewCatalogHandle(c *Catalog) *CatalogHandle {
	h := &CatalogHandle{}
	h.current.Store(c)
	return h
}

// Load returns the current catalog.
func (h *CatalogHandle) Load() *Catalog {
	return h.current.Load()
}

// Swap atomically replaces the catalog. In-flight requests keep the
// catalog they started with.
func (h *CatalogHandle) Swap(c *Catalog) {
	h.current.Store(c)
}
