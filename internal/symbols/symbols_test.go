package symbols

import (
	"errors"
	"strings"
	"testing"
)

type addFunc func(a, b int) int

func testTable() *Table {
	return NewTable(map[string]any{
		"math.Add": addFunc(func(a, b int) int { return a + b }),
		"math.Neg": func(a int) int { return -a },
	})
}

func TestLenientResolvesPresentSymbol(t *testing.T) {
	r := NewLenient(testTable())

	add, rec := Lookup[addFunc](r, "math.Add")
	if !rec.Resolved {
		t.Fatalf("expected resolved, got %+v", rec)
	}
	if got := add(2, 3); got != 5 {
		t.Fatalf("add(2,3) = %d", got)
	}
	if r.Mode() != ModeLenient {
		t.Fatalf("mode = %v", r.Mode())
	}
}

func TestLenientMissingSymbol(t *testing.T) {
	r := NewLenient(testTable())

	fn, rec := Lookup[addFunc](r, "math.Mul")
	if rec.Resolved {
		t.Fatal("math.Mul should not resolve")
	}
	if rec.Missing != "math.Mul" {
		t.Fatalf("missing name = %q", rec.Missing)
	}
	if fn != nil {
		t.Fatal("unresolved symbol must be nil")
	}
}

func TestLookupTypeMismatchIsUnresolved(t *testing.T) {
	r := NewLenient(testTable())

	_, rec := Lookup[addFunc](r, "math.Neg")
	if rec.Resolved {
		t.Fatal("wrong type should not resolve")
	}
}

func TestLenientSeesLateRegistration(t *testing.T) {
	table := testTable()
	r := NewLenient(table)

	if _, rec := r.Resolve("math.Sub"); rec.Resolved {
		t.Fatal("math.Sub not registered yet")
	}
	table.Register("math.Sub", addFunc(func(a, b int) int { return a - b }))

	sub, rec := Lookup[addFunc](r, "math.Sub")
	if !rec.Resolved || sub(5, 3) != 2 {
		t.Fatal("late registration should resolve")
	}

	table.Register("math.Sub", nil)
	if _, rec := r.Resolve("math.Sub"); rec.Resolved {
		t.Fatal("nil registration should remove the symbol")
	}
}

func TestStrictRequiresAllSymbols(t *testing.T) {
	_, err := NewStrict(testTable(), []string{"math.Add", "math.Mul", "math.Div"})
	if !errors.Is(err, ErrMissingSymbol) {
		t.Fatalf("expected ErrMissingSymbol, got %v", err)
	}
	if !strings.Contains(err.Error(), "math.Mul") || !strings.Contains(err.Error(), "math.Div") {
		t.Fatalf("error should list every missing symbol: %v", err)
	}
}

func TestStrictSnapshot(t *testing.T) {
	table := testTable()
	r, err := NewStrict(table, []string{"math.Add"})
	if err != nil {
		t.Fatalf("new strict: %v", err)
	}
	if r.Mode() != ModeStrict {
		t.Fatalf("mode = %v", r.Mode())
	}

	// Optional symbols present at construction are carried along.
	if _, rec := r.Resolve("math.Neg"); !rec.Resolved {
		t.Fatal("math.Neg should be in the snapshot")
	}

	// Later table changes do not affect a strict resolver.
	table.Register("math.Add", nil)
	if _, rec := Lookup[addFunc](r, "math.Add"); !rec.Resolved {
		t.Fatal("strict snapshot should be immutable")
	}
}

func TestMustStrictPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustStrict(testTable(), []string{"math.Mul"})
}

func TestLookupNilResolver(t *testing.T) {
	_, rec := Lookup[addFunc](nil, "math.Add")
	if rec.Resolved {
		t.Fatal("nil resolver resolves nothing")
	}
}
