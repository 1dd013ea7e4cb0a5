package querybuilder

import (
	"context"
	"errors"
	"math"
	"net/url"
	"reflect"
	"testing"
)

// recordingQuery captures every refinement so tests can inspect the result.
type recordingQuery struct {
	filter     Filter
	sort       *string
	skip       *int64
	limit      *int64
	projection *string

	countFilter Filter
	count       int64
	countErr    error
	rows        []string
	execErr     error
}

func newRecordingQuery() *recordingQuery {
	return &recordingQuery{filter: Filter{}}
}

func (q *recordingQuery) Find(f Filter) PendingQuery[string] {
	q.filter = q.filter.And(f)
	return q
}

func (q *recordingQuery) Sort(spec string) PendingQuery[string] {
	q.sort = &spec
	return q
}

func (q *recordingQuery) Skip(n int64) PendingQuery[string] {
	q.skip = &n
	return q
}

func (q *recordingQuery) Limit(n int64) PendingQuery[string] {
	q.limit = &n
	return q
}

func (q *recordingQuery) Select(spec string) PendingQuery[string] {
	q.projection = &spec
	return q
}

func (q *recordingQuery) Conditions() Filter {
	return q.filter
}

func (q *recordingQuery) CountDocuments(_ context.Context, f Filter) (int64, error) {
	q.countFilter = f
	return q.count, q.countErr
}

func (q *recordingQuery) Exec(context.Context) ([]string, error) {
	return q.rows, q.execErr
}

func TestSearch_BuildsCaseInsensitiveOr(t *testing.T) {
	q := newRecordingQuery()
	New[string](q, Params{"searchTerm": "shoe", "page": "2", "limit": "5"}).
		Search("name", "description").
		Filter().
		Paginate()

	want := Filter{"$or": []Filter{
		{"name": Filter{"$regex": "shoe", "$options": "i"}},
		{"description": Filter{"$regex": "shoe", "$options": "i"}},
	}}
	if !reflect.DeepEqual(q.filter, want) {
		t.Fatalf("filter = %#v, want %#v", q.filter, want)
	}
	if *q.skip != 5 || *q.limit != 5 {
		t.Fatalf("skip/limit = %d/%d, want 5/5", *q.skip, *q.limit)
	}
}

func TestSearch_NoOpCases(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		fields []string
	}{
		{"no term", Params{"category": "x"}, []string{"name"}},
		{"empty term", Params{"searchTerm": ""}, []string{"name"}},
		{"nil term", Params{"searchTerm": nil}, []string{"name"}},
		{"no fields", Params{"searchTerm": "shoe"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newRecordingQuery()
			New[string](q, tt.params).Search(tt.fields...)
			if len(q.filter) != 0 {
				t.Fatalf("expected untouched filter, got %v", q.filter)
			}
		})
	}
}

func TestSearch_LiteralEscapesMetacharacters(t *testing.T) {
	q := newRecordingQuery()
	New[string](q, Params{"searchTerm": "a+b (x)"}, WithLiteralSearch()).Search("name")

	clauses := q.filter["$or"].([]Filter)
	got := clauses[0]["name"].(Filter)["$regex"]
	if got != `a\+b \(x\)` {
		t.Fatalf("regex = %q", got)
	}
}

func TestSearch_NumericTerm(t *testing.T) {
	q := newRecordingQuery()
	New[string](q, Params{"searchTerm": 42}).Search("sku")

	clauses := q.filter["$or"].([]Filter)
	if clauses[0]["sku"].(Filter)["$regex"] != "42" {
		t.Fatalf("unexpected clause %v", clauses[0])
	}
}

func TestFilter_ExcludesReservedKeys(t *testing.T) {
	q := newRecordingQuery()
	params := Params{
		"searchTerm": "x", "sort": "name", "limit": "1", "page": "1", "fields": "name", "skipLimit": "YES",
		"category": "507f1f77bcf86cd799439011", "status": "active", "rating": 4, "ignored": nil,
	}
	New[string](q, params).Filter()

	want := Filter{"category": "507f1f77bcf86cd799439011", "status": "active", "rating": 4}
	if !reflect.DeepEqual(q.filter, want) {
		t.Fatalf("filter = %v, want %v", q.filter, want)
	}
	if len(params) != 10 {
		t.Fatal("params must not be modified")
	}
}

func TestFilter_OnlyReservedKeysIsNoOp(t *testing.T) {
	q := newRecordingQuery()
	New[string](q, Params{"page": "2"}).Filter()
	if len(q.filter) != 0 {
		t.Fatalf("expected empty filter, got %v", q.filter)
	}
}

func TestSort(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   string
	}{
		{"default", Params{}, "-createdAt"},
		{"empty", Params{"sort": ""}, "-createdAt"},
		{"single", Params{"sort": "name"}, "name"},
		{"multiple", Params{"sort": "-price,name"}, "-price name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newRecordingQuery()
			New[string](q, tt.params).Sort()
			if *q.sort != tt.want {
				t.Fatalf("sort = %q, want %q", *q.sort, tt.want)
			}
		})
	}
}

func TestSort_IdempotentByReplacement(t *testing.T) {
	q := newRecordingQuery()
	New[string](q, Params{"sort": "-price,name"}).Sort().Sort()
	if *q.sort != "-price name" {
		t.Fatalf("sort = %q", *q.sort)
	}
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name      string
		params    Params
		wantSkip  int64
		wantLimit int64
	}{
		{"defaults", Params{}, 0, 10},
		{"page 3 limit 20", Params{"page": "3", "limit": "20"}, 40, 20},
		{"numeric values", Params{"page": 2, "limit": 15}, 15, 15},
		{"non numeric", Params{"page": "abc", "limit": "x"}, 0, 10},
		{"zero falls back", Params{"page": "0", "limit": "0"}, 0, 10},
		{"whitespace", Params{"page": " 2 ", "limit": " 4"}, 4, 4},
		{"negative page passes through", Params{"page": "-1", "limit": "10"}, -20, 10},
		{"skipLimit other value", Params{"skipLimit": "no", "page": "2"}, 10, 10},
		{"hex page", Params{"page": "0x2", "limit": "10"}, 10, 10},
		{"binary and octal", Params{"page": "0b11", "limit": "0o4"}, 8, 4},
		{"uppercase prefix", Params{"page": "0X2", "limit": "0B101"}, 5, 5},
		{"signed hex falls back", Params{"page": "-0x2", "limit": "10"}, 0, 10},
		{"hex with separator falls back", Params{"page": "0x1_0", "limit": "10"}, 0, 10},
		{"page overflow saturates", Params{"page": "1e19", "limit": "10"}, math.MaxInt64, 10},
		{"negative overflow saturates", Params{"page": "-1e19", "limit": "10"}, math.MinInt64, 10},
		{"limit overflow saturates", Params{"limit": "1e300"}, 0, math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newRecordingQuery()
			New[string](q, tt.params).Paginate()
			if q.skip == nil || q.limit == nil {
				t.Fatal("expected skip and limit to be applied")
			}
			if *q.skip != tt.wantSkip || *q.limit != tt.wantLimit {
				t.Fatalf("skip/limit = %d/%d, want %d/%d", *q.skip, *q.limit, tt.wantSkip, tt.wantLimit)
			}
		})
	}
}

func TestPaginate_SkipLimitYes(t *testing.T) {
	for _, v := range []string{"YES", "yes", "Yes"} {
		q := newRecordingQuery()
		New[string](q, Params{"skipLimit": v, "page": "3", "limit": "20"}).Paginate()
		if q.skip != nil || q.limit != nil {
			t.Fatalf("skipLimit=%s must disable pagination", v)
		}
	}
}

func TestFields(t *testing.T) {
	q := newRecordingQuery()
	New[string](q, Params{"fields": "name,price"}).Fields()
	if *q.projection != "name price" {
		t.Fatalf("projection = %q", *q.projection)
	}

	q = newRecordingQuery()
	New[string](q, Params{}).Fields()
	if *q.projection != "-__v" {
		t.Fatalf("default projection = %q", *q.projection)
	}
}

func TestWithDefaults(t *testing.T) {
	q := newRecordingQuery()
	New[string](q, Params{}, WithDefaults(Defaults{Sort: "name", Limit: 25, Projection: "-_rev"})).
		Sort().Paginate().Fields()

	if *q.sort != "name" || *q.limit != 25 || *q.skip != 0 || *q.projection != "-_rev" {
		t.Fatalf("defaults not applied: sort=%q limit=%d projection=%q", *q.sort, *q.limit, *q.projection)
	}
}

func TestCountTotal_UsesConditionsOnly(t *testing.T) {
	q := newRecordingQuery()
	q.count = 42
	b := New[string](q, Params{"status": "active", "sort": "name", "page": "2", "fields": "name"}).
		Filter().Sort().Paginate().Fields()

	total, err := b.CountTotal(context.Background())
	if err != nil {
		t.Fatalf("CountTotal: %v", err)
	}
	if total != 42 {
		t.Fatalf("total = %d", total)
	}
	if !reflect.DeepEqual(q.countFilter, Filter{"status": "active"}) {
		t.Fatalf("count filter = %v", q.countFilter)
	}
}

func TestCountTotal_PropagatesError(t *testing.T) {
	boom := errors.New("connection reset")
	q := newRecordingQuery()
	q.countErr = boom
	if _, err := New[string](q, nil).CountTotal(context.Background()); err != boom {
		t.Fatalf("expected error unchanged, got %v", err)
	}
}

func TestExecute(t *testing.T) {
	q := newRecordingQuery()
	q.rows = []string{"a", "b"}
	q.count = 12

	res, err := New[string](q, Params{"page": "2", "limit": "5"}).Paginate().Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := Meta{Page: 2, Limit: 5, Total: 12, TotalPage: 3}
	if res.Meta != want {
		t.Fatalf("meta = %+v, want %+v", res.Meta, want)
	}
	if len(res.Data) != 2 {
		t.Fatalf("data = %v", res.Data)
	}
}

func TestMeta_SaturatesHugePage(t *testing.T) {
	b := New[string](newRecordingQuery(), Params{"page": "1e19", "limit": "10"}).Paginate()
	meta := b.Meta(25)
	if int64(meta.Page) != math.MaxInt64 || meta.Limit != 10 || meta.TotalPage != 3 {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestExecute_Errors(t *testing.T) {
	boom := errors.New("boom")

	q := newRecordingQuery()
	q.execErr = boom
	if _, err := New[string](q, nil).Execute(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected exec error, got %v", err)
	}

	q = newRecordingQuery()
	q.countErr = boom
	if _, err := New[string](q, nil).Execute(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected count error, got %v", err)
	}
}

func TestExecute_UnpaginatedMeta(t *testing.T) {
	q := newRecordingQuery()
	q.count = 3
	res, err := New[string](q, Params{"skipLimit": "YES"}).Paginate().Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Meta != (Meta{Page: 1, Limit: 3, Total: 3, TotalPage: 1}) {
		t.Fatalf("meta = %+v", res.Meta)
	}
	if res.Data == nil {
		t.Fatal("data must be an empty slice, not nil")
	}
}

func TestParamsFromValues(t *testing.T) {
	values, _ := url.ParseQuery("searchTerm=shoe&page=2&category=a&category=b")
	params := ParamsFromValues(values)
	if params["searchTerm"] != "shoe" || params["page"] != "2" || params["category"] != "a" {
		t.Fatalf("unexpected params %v", params)
	}
}

func TestParseQuery(t *testing.T) {
	params, err := ParseQuery("searchTerm=red+shoe&sort=-price,name")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if params["searchTerm"] != "red shoe" || params["sort"] != "-price,name" {
		t.Fatalf("unexpected params %v", params)
	}
	if _, err := ParseQuery("bad=%zz"); err == nil {
		t.Fatal("expected error for malformed escape")
	}
}
