package hierarchy

import (
	"reflect"
	"testing"

	"taxotree/internal/models"
)

func record(category, subcategory, detail string) models.ClassificationRecord {
	return models.ClassificationRecord{
		Classification: models.Classification{
			Category:    category,
			Subcategory: subcategory,
			Detail:      detail,
		},
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	res := Aggregate(nil)

	if res.Tree.Total != 0 {
		t.Errorf("Expected total 0, got %d", res.Tree.Total)
	}
	if len(res.Tree.Categories) != 0 {
		t.Errorf("Expected no categories, got %d", len(res.Tree.Categories))
	}
	if res.Skipped != 0 {
		t.Errorf("Expected 0 skipped, got %d", res.Skipped)
	}
}

func TestAggregateBasicTree(t *testing.T) {
	records := []models.ClassificationRecord{
		record("A", "B", "x"),
		record("A", "B", "x"),
		record("A", "C", "y"),
	}

	res := Aggregate(records)

	if res.Skipped != 0 {
		t.Fatalf("Expected 0 skipped, got %d", res.Skipped)
	}
	if res.Tree.Total != 3 {
		t.Fatalf("Expected total 3, got %d", res.Tree.Total)
	}
	if len(res.Tree.Categories) != 1 {
		t.Fatalf("Expected 1 category, got %d", len(res.Tree.Categories))
	}

	cat := res.Tree.Categories[0]
	if cat.Name != "A" || cat.Total != 3 || cat.Percentage != 100 {
		t.Errorf("Unexpected category node: %+v", cat)
	}
	if len(cat.Subcategories) != 2 {
		t.Fatalf("Expected 2 subcategories, got %d", len(cat.Subcategories))
	}

	b := cat.Subcategories[0]
	if b.Name != "B" || b.Total != 2 || b.Percentage != 66.67 {
		t.Errorf("Unexpected subcategory B: %+v", b)
	}
	if len(b.Details) != 1 || b.Details[0].Text != "x" || b.Details[0].Count != 2 || b.Details[0].Percentage != 100 {
		t.Errorf("Unexpected detail breakdown for B: %+v", b.Details)
	}

	c := cat.Subcategories[1]
	if c.Name != "C" || c.Total != 1 || c.Percentage != 33.33 {
		t.Errorf("Unexpected subcategory C: %+v", c)
	}
	if len(c.Details) != 1 || c.Details[0].Text != "y" || c.Details[0].Count != 1 || c.Details[0].Percentage != 100 {
		t.Errorf("Unexpected detail breakdown for C: %+v", c.Details)
	}
}

func TestAggregateSkipsRecordsWithoutSubcategory(t *testing.T) {
	records := []models.ClassificationRecord{
		record("A", "B", ""),
		record("A", "", "orphan detail"),
	}

	res := Aggregate(records)

	if res.Skipped != 1 {
		t.Errorf("Expected 1 skipped record, got %d", res.Skipped)
	}
	if res.Tree.Total != 1 {
		t.Errorf("Expected total 1 after skip, got %d", res.Tree.Total)
	}
}

func TestAggregateEmptyCategoryIsLiteral(t *testing.T) {
	res := Aggregate([]models.ClassificationRecord{record("", "B", "")})

	if res.Skipped != 0 {
		t.Fatalf("Expected empty category to be accepted, got %d skipped", res.Skipped)
	}
	if len(res.Tree.Categories) != 1 || res.Tree.Categories[0].Name != "" {
		t.Errorf("Expected literal empty-named category, got %+v", res.Tree.Categories)
	}
}

func TestAggregateMissingDetailOmittedButCounted(t *testing.T) {
	records := []models.ClassificationRecord{
		record("A", "B", "x"),
		record("A", "B", ""),
		record("A", "B", ""),
	}

	res := Aggregate(records)

	sub := res.Tree.Categories[0].Subcategories[0]
	if sub.Total != 3 {
		t.Errorf("Expected subcategory total 3 including detail-less records, got %d", sub.Total)
	}
	if len(sub.Details) != 1 {
		t.Fatalf("Expected a single detail bucket, got %+v", sub.Details)
	}
	// Detail percentage is relative to the subcategory total, not the
	// detail-bearing subset.
	if sub.Details[0].Percentage != 33.33 {
		t.Errorf("Expected detail percentage 33.33, got %v", sub.Details[0].Percentage)
	}
}

func TestAggregateCountInvariants(t *testing.T) {
	records := []models.ClassificationRecord{
		record("Products", "Cards", "limit increase"),
		record("Products", "Cards", "limit increase"),
		record("Products", "Loans", "mortgage"),
		record("Support", "App", "login"),
		record("Support", "App", ""),
		record("Support", "Branch", "hours"),
		record("", "Unplaced", ""),
		record("Support", "", ""), // skipped
	}

	res := Aggregate(records)

	if got, want := res.Tree.Total+res.Skipped, len(records); got != want {
		t.Errorf("total+skipped = %d, want %d", got, want)
	}

	for _, cat := range res.Tree.Categories {
		subSum := 0
		for _, sub := range cat.Subcategories {
			subSum += sub.Total
			if sub.Percentage < 0 || sub.Percentage > 100 {
				t.Errorf("Subcategory %q percentage out of range: %v", sub.Name, sub.Percentage)
			}
			for _, d := range sub.Details {
				if d.Percentage < 0 || d.Percentage > 100 {
					t.Errorf("Detail %q percentage out of range: %v", d.Text, d.Percentage)
				}
			}
		}
		if subSum != cat.Total {
			t.Errorf("Category %q subcategory totals sum to %d, want %d", cat.Name, subSum, cat.Total)
		}
		if cat.Percentage < 0 || cat.Percentage > 100 {
			t.Errorf("Category %q percentage out of range: %v", cat.Name, cat.Percentage)
		}
	}

	catSum := 0
	for _, cat := range res.Tree.Categories {
		catSum += cat.Total
	}
	if catSum != res.Tree.Total {
		t.Errorf("Category totals sum to %d, want grand total %d", catSum, res.Tree.Total)
	}
}

func TestAggregateExemplarCap(t *testing.T) {
	var records []models.ClassificationRecord
	for i := 0; i < 5; i++ {
		r := record("A", "B", "")
		r.Metadata = models.SourceMetadata{ConversationID: string(rune('a' + i))}
		records = append(records, r)
	}

	res := Aggregate(records)

	exemplars := res.Tree.Categories[0].Subcategories[0].Exemplars
	if len(exemplars) != 3 {
		t.Fatalf("Expected 3 exemplars, got %d", len(exemplars))
	}
	// First-seen order, never resampled once the cap is hit.
	for i, want := range []string{"a", "b", "c"} {
		if exemplars[i].ConversationID != want {
			t.Errorf("Exemplar %d = %q, want %q", i, exemplars[i].ConversationID, want)
		}
	}
}

func TestAggregateDeterministic(t *testing.T) {
	records := []models.ClassificationRecord{
		record("B", "X", "1"),
		record("A", "Y", "2"),
		record("B", "Z", "3"),
		record("A", "Y", ""),
	}

	first := Aggregate(records)
	second := Aggregate(records)

	if !reflect.DeepEqual(first, second) {
		t.Error("Aggregate is not deterministic for identical input")
	}
	if first.Tree.Categories[0].Name != "B" || first.Tree.Categories[1].Name != "A" {
		t.Errorf("Expected first-seen category order [B A], got %+v", first.Tree.Categories)
	}
}

func TestPercentageRounding(t *testing.T) {
	tests := []struct {
		count, total int
		want         float64
	}{
		{1, 3, 33.33},
		{2, 3, 66.67},
		{1, 1, 100},
		{0, 7, 0},
		{1, 8, 12.5},
		{0, 0, 0},
	}

	for _, tc := range tests {
		if got := percentage(tc.count, tc.total); got != tc.want {
			t.Errorf("percentage(%d, %d) = %v, want %v", tc.count, tc.total, got, tc.want)
		}
	}
}
