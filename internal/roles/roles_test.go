package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := map[string]Role{
		"tester":        Tester,
		"employee":      Tester,
		"Manager":       Manager,
		"ADMIN":         Admin,
		"administrator": Admin,
		"  admin  ":     Admin,
		"superuser":     Unknown,
		"":              Unknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, Parse(in), "Parse(%q)", in)
	}
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "Tester", Tester.Display())
	assert.Equal(t, "Manager", Manager.Display())
	assert.Equal(t, "Admin", Admin.Display())
	assert.Equal(t, "Unknown", Unknown.Display())
}

func TestLinksFor(t *testing.T) {
	assert.Nil(t, LinksFor(Unknown), "unknown roles get no navigation")

	tester := LinksFor(Tester)
	admin := LinksFor(Admin)
	assert.Less(t, len(tester), len(admin), "the link sets widen with the role")

	// Callers get a copy, not the shared backing slice.
	tester[0].Label = "mutated"
	assert.Equal(t, "Dashboard", LinksFor(Tester)[0].Label)
}
