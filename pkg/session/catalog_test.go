package session

import "testing"

func TestCatalog(t *testing.T) {
	var c Catalog
	if name, ok := c.Get(); ok || name != "" {
		t.Fatalf("zero Catalog = (%q, %v), want unset", name, ok)
	}

	c.Set("ANALYTICS")
	if name, ok := c.Get(); !ok || name != "ANALYTICS" {
		t.Errorf("Get() = (%q, %v), want (ANALYTICS, true)", name, ok)
	}
	if got := c.Name(); got != "ANALYTICS" {
		t.Errorf("Name() = %q, want ANALYTICS", got)
	}

	c.Reset()
	if name, ok := c.Get(); ok || name != "" {
		t.Errorf("after Reset Get() = (%q, %v), want unset", name, ok)
	}
}
