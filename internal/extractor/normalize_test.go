package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		`"Foo"`:             "Foo",
		`'Foo'`:             "Foo",
		"`Foo`":             "Foo",
		`Symbol("Foo")`:     "Foo",
		`Symbol.for("Foo")`: "Foo",
		`Symbol.for('Foo')`: "Foo",
		`Foo`:               "Foo",
		`TYPES.Logger`:      "TYPES.Logger",
		"TYPES\n  .Logger":  "TYPES.Logger",
		`  Foo  `:           "Foo",
		`"a.b.c"`:           "a.b.c",
		`Symbol(name)`:      "Symbol(name)",
		`new Foo()`:         "new Foo()",
		`TYPES["Logger"]`:   "TYPES.Logger",
		`TYPES[ 'Logger' ]`: "TYPES.Logger",
		`A.B["c"]["d"]`:     "A.B.c.d",
		`TYPES[key]`:        "TYPES[key]",
		`f()["x"]`:          `f()["x"]`,
		``:                  "",
		`"`:                 `"`,
	}
	cases["Symbol . for ( `Foo` )"] = "Foo"
	cases["TYPES[`Logger`]"] = "TYPES.Logger"
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestStripNamespace(t *testing.T) {
	assert.Equal(t, "Logger", StripNamespace("TYPES.Logger"))
	assert.Equal(t, "Id", StripNamespace("A.B.Id"))
	assert.Equal(t, "", StripNamespace("Logger"))
	assert.Equal(t, "", StripNamespace("Logger."))
	assert.Equal(t, "", StripNamespace(".Logger"))
}
