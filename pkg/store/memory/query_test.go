package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimburion/querykit/pkg/querybuilder"
)

type product struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Category  string    `bson:"category"`
	Price     int       `bson:"price"`
	Version   int       `bson:"__v"`
	CreatedAt time.Time `bson:"createdAt"`
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seed() *Collection {
	return NewCollection("products",
		map[string]any{"_id": "p1", "name": "Running Shoe", "category": "shoes", "price": 120, "__v": 1, "createdAt": epoch},
		map[string]any{"_id": "p2", "name": "Trail shoe", "category": "shoes", "price": 90, "__v": 2, "createdAt": epoch.Add(time.Hour)},
		map[string]any{"_id": "p3", "name": "Sun Hat", "category": "hats", "price": 25, "__v": 1, "createdAt": epoch.Add(2 * time.Hour)},
		map[string]any{"_id": "p4", "name": "Wool Hat", "category": "hats", "price": 40, "__v": 1, "createdAt": epoch.Add(3 * time.Hour),
			"seller": map[string]any{"name": "acme"}, "tags": []any{"winter", "wool"}},
	)
}

func ids(items []product) []string {
	out := make([]string, len(items))
	for i, p := range items {
		out[i] = p.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQuery_FilterSortPageProject(t *testing.T) {
	ctx := context.Background()
	q := NewQuery[product](seed()).
		Find(querybuilder.Filter{"category": "shoes"}).
		Sort("-price").
		Skip(1).
		Limit(1).
		Select("-__v")

	got, err := q.Exec(ctx)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !equalStrings(ids(got), []string{"p2"}) {
		t.Fatalf("got %v, want [p2]", ids(got))
	}
	if got[0].Version != 0 {
		t.Fatal("expected __v to be projected out")
	}
	if got[0].Name != "Trail shoe" {
		t.Fatalf("unexpected name %q", got[0].Name)
	}
}

func TestQuery_RegexOr(t *testing.T) {
	q := NewQuery[product](seed()).Find(querybuilder.Filter{"$or": []querybuilder.Filter{
		{"name": querybuilder.Filter{"$regex": "shoe", "$options": "i"}},
		{"category": querybuilder.Filter{"$regex": "^ha"}},
	}}).Sort("price")

	got, err := q.Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !equalStrings(ids(got), []string{"p3", "p4", "p2", "p1"}) {
		t.Fatalf("got %v", ids(got))
	}
}

func TestQuery_StringsDoNotEqualNumbers(t *testing.T) {
	n, err := NewQuery[product](seed()).CountDocuments(context.Background(), querybuilder.Filter{"price": "25"})
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}

func TestQuery_NumberFieldsCastNumericStrings(t *testing.T) {
	tests := []struct {
		name   string
		filter querybuilder.Filter
		want   int64
	}{
		{"equality", querybuilder.Filter{"price": "25"}, 1},
		{"range", querybuilder.Filter{"price": querybuilder.Filter{"$gte": "90"}}, 2},
		{"in", querybuilder.Filter{"price": querybuilder.Filter{"$in": []any{"25", "40"}}}, 2},
		{"not a number stays a string", querybuilder.Filter{"price": "cheap"}, 0},
		{"other fields untouched", querybuilder.Filter{"__v": "1"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewQuery[product](seed(), WithNumberFields("price")).CountDocuments(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("CountDocuments: %v", err)
			}
			if n != tt.want {
				t.Fatalf("count = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestQuery_Operators(t *testing.T) {
	tests := []struct {
		name   string
		filter querybuilder.Filter
		want   int64
	}{
		{"gte", querybuilder.Filter{"price": querybuilder.Filter{"$gte": 90}}, 2},
		{"lt", querybuilder.Filter{"price": map[string]any{"$lt": 30}}, 1},
		{"in", querybuilder.Filter{"_id": querybuilder.Filter{"$in": []string{"p1", "p4"}}}, 2},
		{"nin", querybuilder.Filter{"_id": querybuilder.Filter{"$nin": []any{"p1"}}}, 3},
		{"ne", querybuilder.Filter{"category": querybuilder.Filter{"$ne": "hats"}}, 2},
		{"exists", querybuilder.Filter{"seller": querybuilder.Filter{"$exists": true}}, 1},
		{"not exists", querybuilder.Filter{"seller": querybuilder.Filter{"$exists": false}}, 3},
		{"dotted path", querybuilder.Filter{"seller.name": "acme"}, 1},
		{"array contains", querybuilder.Filter{"tags": "wool"}, 1},
		{"and", querybuilder.Filter{"$and": []querybuilder.Filter{{"category": "hats"}, {"price": 25}}}, 1},
		{"empty", querybuilder.Filter{}, 4},
		{"eq", querybuilder.Filter{"category": querybuilder.Filter{"$eq": "hats"}}, 2},
		{"eq and range", querybuilder.Filter{"price": querybuilder.Filter{"$eq": 40, "$gt": 30}}, 1},
		{"ne matches missing field", querybuilder.Filter{"seller.name": querybuilder.Filter{"$ne": "acme"}}, 3},
		{"ne on array", querybuilder.Filter{"tags": querybuilder.Filter{"$ne": "wool"}}, 3},
		{"in on array", querybuilder.Filter{"tags": querybuilder.Filter{"$in": []string{"wool", "silk"}}}, 1},
		{"in skips missing field", querybuilder.Filter{"seller.name": querybuilder.Filter{"$in": []any{"acme", "other"}}}, 1},
		{"in null matches missing field", querybuilder.Filter{"seller": querybuilder.Filter{"$in": []any{nil}}}, 3},
		{"empty in", querybuilder.Filter{"_id": querybuilder.Filter{"$in": []any{}}}, 0},
		{"nin on array", querybuilder.Filter{"tags": querybuilder.Filter{"$nin": []any{"winter"}}}, 3},
		{"nor", querybuilder.Filter{"$nor": []querybuilder.Filter{{"category": "hats"}, {"price": 120}}}, 1},
		{"or beside field", querybuilder.Filter{"category": "shoes", "$or": []querybuilder.Filter{{"price": 90}, {"price": 25}}}, 1},
		{"and beside or", querybuilder.Filter{
			"$and": []querybuilder.Filter{{"category": "hats"}},
			"$or":  []querybuilder.Filter{{"price": 25}, {"price": 120}},
		}, 1},
		{"size", querybuilder.Filter{"tags": querybuilder.Filter{"$size": 2}}, 1},
		{"case insensitive regex", querybuilder.Filter{"name": querybuilder.Filter{"$regex": "HAT$", "$options": "i"}}, 2},
		{"embedded document", querybuilder.Filter{"seller": map[string]any{"name": "acme"}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewQuery[product](seed()).CountDocuments(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("CountDocuments: %v", err)
			}
			if n != tt.want {
				t.Fatalf("count = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestQuery_Errors(t *testing.T) {
	ctx := context.Background()

	if _, err := NewQuery[product](seed()).Skip(-5).Exec(ctx); !errors.Is(err, ErrNegativeSkip) {
		t.Fatalf("expected ErrNegativeSkip, got %v", err)
	}
	if _, err := NewQuery[product](seed()).Select("name -price").Exec(ctx); !errors.Is(err, ErrMixedProjection) {
		t.Fatalf("expected ErrMixedProjection, got %v", err)
	}
	if _, err := NewQuery[product](seed()).Find(querybuilder.Filter{"$where": "x"}).Exec(ctx); !errors.Is(err, ErrUnsupportedOperator) {
		t.Fatalf("expected ErrUnsupportedOperator, got %v", err)
	}
	if _, err := NewQuery[product](seed()).Find(querybuilder.Filter{"name": querybuilder.Filter{"$regex": "("}}).Exec(ctx); err == nil {
		t.Fatal("expected invalid regex error")
	}
	if _, err := NewQuery[product](seed()).Find(querybuilder.Filter{"name": querybuilder.Filter{"$options": "i"}}).Exec(ctx); !errors.Is(err, ErrUnsupportedOperator) {
		t.Fatalf("expected ErrUnsupportedOperator for $options alone, got %v", err)
	}
	if _, err := NewQuery[product](seed()).Find(querybuilder.Filter{"price": querybuilder.Filter{"$mod": []int{2, 0}}}).Exec(ctx); !errors.Is(err, ErrUnsupportedOperator) {
		t.Fatalf("expected ErrUnsupportedOperator for $mod, got %v", err)
	}
	if _, err := NewQuery[product](seed()).Find(querybuilder.Filter{"$or": "x"}).Exec(ctx); err == nil {
		t.Fatal("expected error for a non-array $or")
	}
	empty := NewQuery[product](NewCollection("empty")).Select("name -price")
	if _, err := empty.Exec(ctx); !errors.Is(err, ErrMixedProjection) {
		t.Fatalf("expected ErrMixedProjection on an empty collection, got %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := NewQuery[product](seed()).CountDocuments(canceled, querybuilder.Filter{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestQuery_InclusionProjectionKeepsID(t *testing.T) {
	got, err := NewQuery[map[string]any](seed()).Select("name seller.name").Sort("_id").Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d", len(got))
	}
	first := got[0]
	if first["_id"] != "p1" || first["name"] != "Running Shoe" {
		t.Fatalf("unexpected doc %v", first)
	}
	if _, ok := first["price"]; ok {
		t.Fatalf("price must be projected out: %v", first)
	}
	seller, ok := got[3]["seller"].(map[string]any)
	if !ok || seller["name"] != "acme" {
		t.Fatalf("nested inclusion failed: %v", got[3])
	}

	noID, err := NewQuery[map[string]any](seed()).Select("name -_id").Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if _, ok := noID[0]["_id"]; ok {
		t.Fatal("_id must be excluded")
	}
}

func TestQuery_ExclusionDoesNotMutateCollection(t *testing.T) {
	coll := seed()
	if _, err := NewQuery[map[string]any](coll).Select("-seller.name").Exec(context.Background()); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	got, err := NewQuery[map[string]any](coll).Find(querybuilder.Filter{"seller.name": "acme"}).Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(got) != 1 {
		t.Fatal("collection document was mutated by projection")
	}
}

func TestQuery_LimitSemantics(t *testing.T) {
	ctx := context.Background()
	all, _ := NewQuery[product](seed()).Limit(0).Exec(ctx)
	if len(all) != 4 {
		t.Fatalf("limit 0 must return everything, got %d", len(all))
	}
	neg, _ := NewQuery[product](seed()).Limit(-2).Exec(ctx)
	if len(neg) != 2 {
		t.Fatalf("negative limit must use its absolute value, got %d", len(neg))
	}
	past, _ := NewQuery[product](seed()).Skip(10).Exec(ctx)
	if len(past) != 0 {
		t.Fatalf("skip past the end must return nothing, got %d", len(past))
	}
}

func TestQuery_Plan(t *testing.T) {
	q := NewQuery[product](seed()).Find(querybuilder.Filter{"category": "hats"}).Sort("-price").Limit(3)
	plan := q.(*Query[product]).Plan()
	if plan.Collection != "products" || plan.Sort != "-price" || plan.Limit == nil || *plan.Limit != 3 || plan.Skip != nil {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if plan.Filter["category"] != "hats" {
		t.Fatalf("unexpected filter %v", plan.Filter)
	}
}

func TestQuery_SortOrdersAcrossTypes(t *testing.T) {
	coll := NewCollection("mixed",
		map[string]any{"_id": "date", "v": epoch},
		map[string]any{"_id": "bool", "v": true},
		map[string]any{"_id": "string", "v": "a"},
		map[string]any{"_id": "number", "v": 3},
		map[string]any{"_id": "null", "v": nil},
		map[string]any{"_id": "missing"},
	)
	got, err := NewQuery[map[string]any](coll).Sort("v").Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	want := []string{"missing", "null", "number", "string", "bool", "date"}
	for i, doc := range got {
		if doc["_id"] != want[i] {
			t.Fatalf("position %d: got %v, want %s", i, doc["_id"], want[i])
		}
	}

	desc, err := NewQuery[map[string]any](coll).Sort("-v").Limit(1).Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(desc) != 1 || desc[0]["_id"] != "date" {
		t.Fatalf("descending sort = %v", desc)
	}
}

func TestQuery_DecodesNestedDocumentsAsMaps(t *testing.T) {
	got, err := NewQuery[map[string]any](seed()).Find(querybuilder.Filter{"_id": "p4"}).Exec(context.Background())
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
	if _, ok := got[0]["seller"].(map[string]any); !ok {
		t.Fatalf("seller = %T, want map[string]any", got[0]["seller"])
	}
	tags, ok := got[0]["tags"].([]any)
	if !ok || len(tags) != 2 || tags[0] != "winter" {
		t.Fatalf("tags = %#v", got[0]["tags"])
	}
}
