package validate

import (
	"strings"
	"testing"
)

func TestValidateKeys(t *testing.T) {
	v := NewDefault()

	goodKey := strings.Repeat("a1", 16)
	goodSecret := strings.Repeat("b2", 20)

	if !v.ValidateKeys(goodKey, goodSecret) {
		t.Errorf("expected valid key pair to pass")
	}
	if v.ValidateKeys("short", goodSecret) {
		t.Errorf("expected short game key to fail")
	}
	if v.ValidateKeys(goodKey, "short") {
		t.Errorf("expected short secret to fail")
	}
	if v.ValidateKeys(strings.Repeat("g", 32), goodSecret) {
		t.Errorf("expected non-hex game key to fail")
	}
}

func TestValidateBusinessEvent(t *testing.T) {
	v := NewDefault()

	cases := []struct {
		name     string
		currency string
		amount   int64
		cartType string
		itemType string
		itemID   string
		ok       bool
	}{
		{"valid", "USD", 100, "shop", "weapon", "sword", true},
		{"no cart type", "EUR", 0, "", "weapon", "sword", true},
		{"bad currency", "usd", 100, "", "weapon", "sword", false},
		{"negative amount", "USD", -1, "", "weapon", "sword", false},
		{"bad item type", "USD", 100, "", "weapon/", "sword", false},
		{"empty item id", "USD", 100, "", "weapon", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := v.ValidateBusinessEvent(tc.currency, tc.amount, tc.cartType, tc.itemType, tc.itemID)
			if res.Ok != tc.ok {
				t.Errorf("expected ok=%v, got %+v", tc.ok, res)
			}
			if !res.Ok && res.Category != "event_validation" {
				t.Errorf("expected event_validation category, got %q", res.Category)
			}
		})
	}
}

func TestValidateResourceEvent(t *testing.T) {
	v := NewDefault()
	currencies := []string{"gems", "gold"}
	itemTypes := []string{"boost", "lives"}

	cases := []struct {
		name     string
		flowType string
		currency string
		amount   float64
		itemType string
		ok       bool
	}{
		{"valid source", "Source", "gems", 10, "boost", true},
		{"valid sink", "Sink", "gold", 1, "lives", true},
		{"bad flow", "Drain", "gems", 10, "boost", false},
		{"off-list currency", "Source", "diamonds", 10, "boost", false},
		{"zero amount", "Source", "gems", 0, "boost", false},
		{"off-list item type", "Source", "gems", 10, "armor", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := v.ValidateResourceEvent(tc.flowType, tc.currency, tc.amount, tc.itemType, "item", currencies, itemTypes)
			if res.Ok != tc.ok {
				t.Errorf("expected ok=%v, got %+v", tc.ok, res)
			}
		})
	}
}

func TestValidateProgressionEvent(t *testing.T) {
	v := NewDefault()

	cases := []struct {
		name                   string
		status, p1, p2, p3     string
		ok                     bool
	}{
		{"one part", "Start", "world1", "", "", true},
		{"three parts", "Complete", "world1", "level2", "phase3", true},
		{"bad status", "Pause", "world1", "", "", false},
		{"part3 without part2", "Fail", "world1", "", "phase3", false},
		{"empty part1", "Start", "", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := v.ValidateProgressionEvent(tc.status, tc.p1, tc.p2, tc.p3)
			if res.Ok != tc.ok {
				t.Errorf("expected ok=%v, got %+v", tc.ok, res)
			}
		})
	}
}

func TestValidateDesignEvent(t *testing.T) {
	v := NewDefault()

	if res := v.ValidateDesignEvent("menu:settings:open"); !res.Ok {
		t.Errorf("expected valid event id to pass, got %+v", res)
	}
	if res := v.ValidateDesignEvent("a:b:c:d:e:f"); res.Ok {
		t.Errorf("expected six parts to fail")
	}
	if res := v.ValidateDesignEvent("menu::open"); res.Ok {
		t.Errorf("expected empty part to fail")
	}
}

func TestValidateErrorEvent(t *testing.T) {
	v := NewDefault()

	if res := v.ValidateErrorEvent("critical", "boom"); !res.Ok {
		t.Errorf("expected critical severity to pass, got %+v", res)
	}
	if res := v.ValidateErrorEvent("fatal", "boom"); res.Ok {
		t.Errorf("expected unknown severity to fail")
	}
	if res := v.ValidateErrorEvent("info", strings.Repeat("x", MaxErrorMessageLength+1)); res.Ok {
		t.Errorf("expected oversized message to fail")
	}
	// Empty messages are allowed.
	if res := v.ValidateErrorEvent("info", ""); !res.Ok {
		t.Errorf("expected empty message to pass, got %+v", res)
	}
}

func TestValidateDimension(t *testing.T) {
	v := NewDefault()
	available := []string{"ninja", "knight"}

	if !v.ValidateDimension("", nil) {
		t.Errorf("empty value always passes")
	}
	if !v.ValidateDimension("ninja", available) {
		t.Errorf("listed value should pass")
	}
	if v.ValidateDimension("wizard", available) {
		t.Errorf("off-list value should fail")
	}
	if v.ValidateDimension("ninja", nil) {
		t.Errorf("non-empty value with no allow-list should fail")
	}
	long := strings.Repeat("n", MaxLongStringLength+1)
	if v.ValidateDimension(long, []string{long}) {
		t.Errorf("over-length value should fail even when listed")
	}
}

func TestValidateClientTS(t *testing.T) {
	v := NewDefault()

	if !v.ValidateClientTS(1700000000) {
		t.Errorf("plausible timestamp should pass")
	}
	if v.ValidateClientTS(0) {
		t.Errorf("zero should fail")
	}
	if v.ValidateClientTS(-5) {
		t.Errorf("negative should fail")
	}
	if v.ValidateClientTS(9999999999) {
		t.Errorf("upper bound is exclusive")
	}
}

func TestCleanCustomFields(t *testing.T) {
	out := CleanCustomFields(map[string]any{
		"level":     5,
		"ratio":     0.5,
		"name":      "boss",
		"bad key!":  1,
		"empty":     "",
		"oversized": strings.Repeat("x", MaxCustomFieldsValueLength+1),
		"listy":     []string{"not", "allowed"},
	})
	if len(out) != 3 {
		t.Fatalf("expected 3 surviving fields, got %v", out)
	}
	for _, key := range []string{"level", "ratio", "name"} {
		if _, found := out[key]; !found {
			t.Errorf("expected %q to survive", key)
		}
	}

	if CleanCustomFields(nil) != nil {
		t.Errorf("nil input returns nil")
	}
	if CleanCustomFields(map[string]any{"bad key!": 1}) != nil {
		t.Errorf("everything-filtered input returns nil")
	}
}
