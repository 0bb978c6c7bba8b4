// Package validate holds the input-validation rules for event fields
// and game keys. The pipeline and coordinator depend only on the
// Validator interface; Default covers the collector's documented rules.
package validate

import (
	"regexp"
	"strings"
)

// Limits applied by the default validator.
const (
	MaxCustomFieldsCount       = 50
	MaxCustomFieldsKeyLength   = 64
	MaxCustomFieldsValueLength = 256
	MaxErrorMessageLength      = 8192
	MaxShortStringLength       = 32
	MaxLongStringLength        = 64
)

// Result reports a validation outcome. On failure the category/area
// pair identifies the rule for SDK self-error rate limiting.
type Result struct {
	Ok        bool
	Category  string
	Area      string
	Parameter string
	Reason    string
}

func ok() Result { return Result{Ok: true} }

func fail(area, parameter, reason string) Result {
	return Result{
		Ok:        false,
		Category:  "event_validation",
		Area:      area,
		Parameter: parameter,
		Reason:    reason,
	}
}

// Validator accepts or rejects event field values and game keys.
type Validator interface {
	ValidateKeys(gameKey, secret string) bool
	ValidateBusinessEvent(currency string, amount int64, cartType, itemType, itemID string) Result
	ValidateResourceEvent(flowType, currency string, amount float64, itemType, itemID string, currencies, itemTypes []string) Result
	ValidateProgressionEvent(status, part01, part02, part03 string) Result
	ValidateDesignEvent(eventID string) Result
	ValidateErrorEvent(severity, message string) Result
	ValidateDimension(value string, available []string) bool
	ValidateClientTS(ts int64) bool
	ValidateShortString(s string, allowEmpty bool) bool
	ValidateLongString(s string, allowEmpty bool) bool
}

var (
	keyPattern        = regexp.MustCompile(`^[A-Fa-f0-9]{32}$`)
	secretPattern     = regexp.MustCompile(`^[A-Fa-f0-9]{40}$`)
	eventPartPattern  = regexp.MustCompile(`^[A-Za-z0-9\s\-_.()!?]{1,64}$`)
	currencyPattern   = regexp.MustCompile(`^[A-Z]{3}$`)
	customKeyPattern  = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)
	severities        = map[string]bool{"debug": true, "info": true, "warning": true, "error": true, "critical": true}
	progressStatuses  = map[string]bool{"Start": true, "Complete": true, "Fail": true}
	resourceFlowTypes = map[string]bool{"Source": true, "Sink": true}
)

// Default implements the collector's validation rules.
type Default struct{}

func NewDefault() *Default { return &Default{} }

func (Default) ValidateKeys(gameKey, secret string) bool {
	return keyPattern.MatchString(gameKey) && secretPattern.MatchString(secret)
}

func (Default) ValidateBusinessEvent(currency string, amount int64, cartType, itemType, itemID string) Result {
	if !currencyPattern.MatchString(currency) {
		return fail("business_event", "currency", "not a valid ISO 4217 code: "+currency)
	}
	if amount < 0 {
		return fail("business_event", "amount", "amount cannot be negative")
	}
	if cartType != "" && len(cartType) > MaxShortStringLength {
		return fail("business_event", "cart_type", "cart type too long")
	}
	if !eventPartPattern.MatchString(itemType) {
		return fail("business_event", "item_type", "invalid item type: "+itemType)
	}
	if !eventPartPattern.MatchString(itemID) {
		return fail("business_event", "item_id", "invalid item id: "+itemID)
	}
	return ok()
}

func (Default) ValidateResourceEvent(flowType, currency string, amount float64, itemType, itemID string, currencies, itemTypes []string) Result {
	if !resourceFlowTypes[flowType] {
		return fail("resource_event", "flow_type", "invalid flow type: "+flowType)
	}
	if len(currencies) > 0 && !contains(currencies, currency) {
		return fail("resource_event", "currency", "currency not in configured list: "+currency)
	}
	if amount <= 0 {
		return fail("resource_event", "amount", "amount must be greater than zero")
	}
	if len(itemTypes) > 0 && !contains(itemTypes, itemType) {
		return fail("resource_event", "item_type", "item type not in configured list: "+itemType)
	}
	if !eventPartPattern.MatchString(itemID) {
		return fail("resource_event", "item_id", "invalid item id: "+itemID)
	}
	return ok()
}

func (Default) ValidateProgressionEvent(status, part01, part02, part03 string) Result {
	if !progressStatuses[status] {
		return fail("progression_event", "status", "invalid progression status: "+status)
	}
	// Part 3 requires part 2; part 1 is always required.
	if part03 != "" && part02 == "" {
		return fail("progression_event", "progression", "progression02 missing while progression03 is set")
	}
	if !eventPartPattern.MatchString(part01) {
		return fail("progression_event", "progression01", "invalid progression part: "+part01)
	}
	if part02 != "" && !eventPartPattern.MatchString(part02) {
		return fail("progression_event", "progression02", "invalid progression part: "+part02)
	}
	if part03 != "" && !eventPartPattern.MatchString(part03) {
		return fail("progression_event", "progression03", "invalid progression part: "+part03)
	}
	return ok()
}

func (Default) ValidateDesignEvent(eventID string) Result {
	parts := strings.Split(eventID, ":")
	if len(parts) == 0 || len(parts) > 5 {
		return fail("design_event", "event_id", "event id must have 1 to 5 parts: "+eventID)
	}
	for _, part := range parts {
		if !eventPartPattern.MatchString(part) {
			return fail("design_event", "event_id", "invalid event id part: "+eventID)
		}
	}
	return ok()
}

func (Default) ValidateErrorEvent(severity, message string) Result {
	if !severities[severity] {
		return fail("error_event", "severity", "invalid severity: "+severity)
	}
	if len(message) > MaxErrorMessageLength {
		return fail("error_event", "message", "message too long")
	}
	return ok()
}

// ValidateDimension accepts the empty value unconditionally; any other
// value must be a valid long string and appear on the configured
// allow-list.
func (d Default) ValidateDimension(value string, available []string) bool {
	if value == "" {
		return true
	}
	if !d.ValidateLongString(value, false) {
		return false
	}
	if len(available) == 0 {
		return false
	}
	return contains(available, value)
}

// ValidateClientTS rejects timestamps outside a plausible range,
// guarding against devices with a wildly wrong clock.
func (Default) ValidateClientTS(ts int64) bool {
	return ts > 0 && ts < 9999999999
}

func (Default) ValidateShortString(s string, allowEmpty bool) bool {
	if s == "" {
		return allowEmpty
	}
	return len(s) <= MaxShortStringLength
}

func (Default) ValidateLongString(s string, allowEmpty bool) bool {
	if s == "" {
		return allowEmpty
	}
	return len(s) <= MaxLongStringLength
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// CleanCustomFields drops entries with invalid keys or values and caps
// the count. Only string and numeric values survive; strings must be
// non-empty and within the length limit. Returns nil when nothing
// survives so callers can skip the custom_fields object entirely.
func CleanCustomFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any)
	count := 0
	for key, value := range fields {
		if count >= MaxCustomFieldsCount {
			break
		}
		if !customKeyPattern.MatchString(key) {
			continue
		}
		switch v := value.(type) {
		case string:
			if len(v) > 0 && len(v) <= MaxCustomFieldsValueLength {
				out[key] = v
				count++
			}
		case int, int32, int64, float32, float64:
			out[key] = v
			count++
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
