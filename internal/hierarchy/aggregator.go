// Package hierarchy folds flat classification records into the nested
// category → subcategory → detail tree with counts and percentages.
// Aggregation is pure: no I/O, no external calls, no hidden state.
package hierarchy

import (
	"math"

	"taxotree/internal/models"
)

// maxExemplars caps how many source metadata samples a subcategory keeps.
const maxExemplars = 3

// Result is the outcome of one aggregation run. Skipped counts records that
// were missing a category or subcategory and therefore excluded from the tree.
type Result struct {
	Tree    models.Hierarchy
	Skipped int
}

type subcategoryAcc struct {
	name        string
	total       int
	detailOrder []string
	details     map[string]int
	exemplars   []models.SourceMetadata
}

type categoryAcc struct {
	name     string
	total    int
	subOrder []string
	subs     map[string]*subcategoryAcc
}

// Aggregate builds the hierarchy for the given records. Category, subcategory
// and detail buckets appear in first-seen order so repeated runs over the
// same input produce identical output. Records missing category or
// subcategory are skipped and tallied, never fatal. Empty input yields an
// empty tree with total 0.
func Aggregate(records []models.ClassificationRecord) Result {
	var (
		order   []string
		cats    = make(map[string]*categoryAcc)
		skipped int
	)

	for _, rec := range records {
		c := rec.Classification
		if c.Subcategory == "" {
			// No subcategory means the record cannot be placed in the tree.
			// An empty-string category is accepted as a literal category
			// named "".
			skipped++
			continue
		}

		cat, ok := cats[c.Category]
		if !ok {
			cat = &categoryAcc{name: c.Category, subs: make(map[string]*subcategoryAcc)}
			cats[c.Category] = cat
			order = append(order, c.Category)
		}
		cat.total++

		sub, ok := cat.subs[c.Subcategory]
		if !ok {
			sub = &subcategoryAcc{name: c.Subcategory, details: make(map[string]int)}
			cat.subs[c.Subcategory] = sub
			cat.subOrder = append(cat.subOrder, c.Subcategory)
		}
		sub.total++

		// Absent detail still counts toward the subcategory total but gets
		// no bucket of its own.
		if c.Detail != "" {
			if _, seen := sub.details[c.Detail]; !seen {
				sub.detailOrder = append(sub.detailOrder, c.Detail)
			}
			sub.details[c.Detail]++
		}

		if len(sub.exemplars) < maxExemplars {
			sub.exemplars = append(sub.exemplars, rec.Metadata)
		}
	}

	tree := models.Hierarchy{Categories: []models.CategoryNode{}}
	for _, name := range order {
		tree.Total += cats[name].total
	}

	// Counts are complete; now percentages top-down.
	for _, name := range order {
		cat := cats[name]
		node := models.CategoryNode{
			Name:          cat.name,
			Total:         cat.total,
			Percentage:    percentage(cat.total, tree.Total),
			Subcategories: make([]models.SubcategoryNode, 0, len(cat.subOrder)),
		}

		for _, subName := range cat.subOrder {
			sub := cat.subs[subName]
			subNode := models.SubcategoryNode{
				Name:       sub.name,
				Total:      sub.total,
				Percentage: percentage(sub.total, cat.total),
				Details:    make([]models.DetailEntry, 0, len(sub.detailOrder)),
				Exemplars:  sub.exemplars,
			}
			for _, text := range sub.detailOrder {
				count := sub.details[text]
				subNode.Details = append(subNode.Details, models.DetailEntry{
					Text:       text,
					Count:      count,
					Percentage: percentage(count, sub.total),
				})
			}
			node.Subcategories = append(node.Subcategories, subNode)
		}

		tree.Categories = append(tree.Categories, node)
	}

	return Result{Tree: tree, Skipped: skipped}
}

// percentage returns count/total*100 rounded to 2 decimal places.
// A zero total yields 0 rather than dividing by zero; that only happens for
// an empty tree, which carries no nodes anyway.
func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*100*100) / 100
}
