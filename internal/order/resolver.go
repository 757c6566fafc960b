/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package order lays out playable items deterministically. Resolution is a
// pure function of the item list and the sort options; equal-ranked items
// keep their relative input order.
package order

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Uncategorized is the display group for items without a category.
const Uncategorized = "uncategorized"

// Sort modes and directions as stored in settings.
const (
	ByName     = "name"
	ByCategory = "category"
	ByCustom   = "custom"

	Asc  = "asc"
	Desc = "desc"
)

// Item is one playable entry in the catalog.
type Item struct {
	ID       string
	Name     string
	Category string // empty means uncategorized
}

// Options selects the layout.
type Options struct {
	SortBy              string
	SortOrder           string
	CustomOrder         []string // sound ids, custom mode only
	CustomCategoryOrder []string // category names, category mode only
}

// Group is one ordered category bucket in category mode.
type Group struct {
	Category string   `json:"category"`
	IDs      []string `json:"ids"`
}

// newCollator builds the name comparator: locale-aware, numeric substrings
// compared as numbers, case folded. Collators are stateful, so each
// resolution gets its own.
func newCollator() *collate.Collator {
	return collate.New(language.Japanese, collate.Numeric, collate.Loose)
}

// Resolve returns the ordered sequence of sound ids.
func Resolve(items []Item, opts Options) []string {
	switch opts.SortBy {
	case ByCustom:
		return resolveCustom(items, opts.CustomOrder)
	case ByCategory:
		var ids []string
		for _, group := range ResolveGroups(items, opts) {
			ids = append(ids, group.IDs...)
		}
		return ids
	default:
		return resolveByName(items, opts.SortOrder)
	}
}

// ResolveGroups returns the ordered (category, ids) groups for category
// mode. Group order is never affected by SortOrder: named categories keep
// catalog-encounter order (or follow CustomCategoryOrder when set, with
// absent categories trailing in encounter order) and Uncategorized sorts
// after all named categories by default.
func ResolveGroups(items []Item, opts Options) []Group {
	byCategory := make(map[string][]Item)
	var encounter []string
	for _, item := range items {
		category := item.Category
		if category == "" {
			category = Uncategorized
		}
		if _, seen := byCategory[category]; !seen {
			encounter = append(encounter, category)
		}
		byCategory[category] = append(byCategory[category], item)
	}

	ordered := orderCategories(encounter, opts.CustomCategoryOrder)

	groups := make([]Group, 0, len(ordered))
	for _, category := range ordered {
		ids := resolveByName(byCategory[category], opts.SortOrder)
		groups = append(groups, Group{Category: category, IDs: ids})
	}
	return groups
}

func orderCategories(encounter, custom []string) []string {
	if len(custom) == 0 {
		// Default ordering: encounter order with Uncategorized last.
		ordered := make([]string, 0, len(encounter))
		hasUncategorized := false
		for _, category := range encounter {
			if category == Uncategorized {
				hasUncategorized = true
				continue
			}
			ordered = append(ordered, category)
		}
		if hasUncategorized {
			ordered = append(ordered, Uncategorized)
		}
		return ordered
	}

	position := make(map[string]int, len(custom))
	for i, category := range custom {
		if _, ok := position[category]; !ok {
			position[category] = i
		}
	}

	ordered := append([]string(nil), encounter...)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, iOK := position[ordered[i]]
		pj, jOK := position[ordered[j]]
		switch {
		case iOK && jOK:
			return pi < pj
		case iOK:
			return true
		case jOK:
			return false
		default:
			return false // both absent: keep encounter order
		}
	})
	return ordered
}

func resolveByName(items []Item, sortOrder string) []string {
	collator := newCollator()
	sorted := append([]Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		cmp := collator.CompareString(sorted[i].Name, sorted[j].Name)
		if sortOrder == Desc {
			cmp = -cmp
		}
		return cmp < 0
	})
	ids := make([]string, len(sorted))
	for i, item := range sorted {
		ids[i] = item.ID
	}
	return ids
}

// resolveCustom orders by position in customOrder. Items absent from it
// sort after all present items; absent ties break on collated name. The
// requested sort direction is ignored in custom mode, and an empty custom
// order falls back to name/asc.
func resolveCustom(items []Item, customOrder []string) []string {
	if len(customOrder) == 0 {
		return resolveByName(items, Asc)
	}

	position := make(map[string]int, len(customOrder))
	for i, id := range customOrder {
		if _, ok := position[id]; !ok {
			position[id] = i
		}
	}

	collator := newCollator()
	sorted := append([]Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, iOK := position[sorted[i].ID]
		pj, jOK := position[sorted[j].ID]
		switch {
		case iOK && jOK:
			return pi < pj
		case iOK:
			return true
		case jOK:
			return false
		default:
			return collator.CompareString(sorted[i].Name, sorted[j].Name) < 0
		}
	})

	ids := make([]string, len(sorted))
	for i, item := range sorted {
		ids[i] = item.ID
	}
	return ids
}
