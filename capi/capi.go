// Package main builds as a c-shared library exposing the SDK to native
// game engines. One process-wide instance; string returns are C strings
// the caller must free.
//
// Build: go build -buildmode=c-shared -o libsignalpipe.so ./capi
package main

import "C"

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/signalpipe/signalpipe-go/pkg/sdk"
)

var (
	once     sync.Once
	instance *sdk.SDK
)

func get() *sdk.SDK {
	once.Do(func() { instance = sdk.New() })
	return instance
}

func decodeFields(raw *C.char) map[string]any {
	s := C.GoString(raw)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil
	}
	return fields
}

func split(csv *C.char) []string {
	s := C.GoString(csv)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

//export sp_configure_build
func sp_configure_build(build *C.char) {
	get().ConfigureBuild(C.GoString(build))
}

//export sp_configure_engine_version
func sp_configure_engine_version(version *C.char) {
	get().ConfigureEngineVersion(C.GoString(version))
}

//export sp_configure_user_id
func sp_configure_user_id(userID *C.char) {
	get().ConfigureUserID(C.GoString(userID))
}

//export sp_configure_writable_path
func sp_configure_writable_path(path *C.char) {
	get().ConfigureWritablePath(C.GoString(path))
}

//export sp_configure_base_url
func sp_configure_base_url(url *C.char) {
	get().ConfigureBaseURL(C.GoString(url))
}

//export sp_configure_available_custom_dimensions01
func sp_configure_available_custom_dimensions01(csv *C.char) {
	get().ConfigureAvailableCustomDimensions01(split(csv))
}

//export sp_configure_available_custom_dimensions02
func sp_configure_available_custom_dimensions02(csv *C.char) {
	get().ConfigureAvailableCustomDimensions02(split(csv))
}

//export sp_configure_available_custom_dimensions03
func sp_configure_available_custom_dimensions03(csv *C.char) {
	get().ConfigureAvailableCustomDimensions03(split(csv))
}

//export sp_configure_available_resource_currencies
func sp_configure_available_resource_currencies(csv *C.char) {
	get().ConfigureAvailableResourceCurrencies(split(csv))
}

//export sp_configure_available_resource_item_types
func sp_configure_available_resource_item_types(csv *C.char) {
	get().ConfigureAvailableResourceItemTypes(split(csv))
}

//export sp_set_enabled_info_log
func sp_set_enabled_info_log(enabled C.int) {
	get().SetEnabledInfoLog(enabled != 0)
}

//export sp_set_enabled_verbose_log
func sp_set_enabled_verbose_log(enabled C.int) {
	get().SetEnabledVerboseLog(enabled != 0)
}

//export sp_set_enabled_event_submission
func sp_set_enabled_event_submission(enabled C.int) {
	get().SetEnabledEventSubmission(enabled != 0)
}

//export sp_set_enabled_manual_session_handling
func sp_set_enabled_manual_session_handling(enabled C.int) {
	get().SetEnabledManualSessionHandling(enabled != 0)
}

//export sp_set_enabled_crash_reporting
func sp_set_enabled_crash_reporting(enabled C.int) {
	get().SetEnabledCrashReporting(enabled != 0)
}

//export sp_initialize
func sp_initialize(gameKey, secret *C.char) C.int {
	if err := get().Initialize(C.GoString(gameKey), C.GoString(secret)); err != nil {
		return 0
	}
	return 1
}

//export sp_add_business_event
func sp_add_business_event(currency *C.char, amount C.longlong, itemType, itemID, cartType, fieldsJSON *C.char) {
	get().AddBusinessEvent(C.GoString(currency), int64(amount),
		C.GoString(itemType), C.GoString(itemID), C.GoString(cartType),
		decodeFields(fieldsJSON))
}

//export sp_add_resource_event
func sp_add_resource_event(flowType, currency *C.char, amount C.double, itemType, itemID, fieldsJSON *C.char) {
	get().AddResourceEvent(C.GoString(flowType), C.GoString(currency), float64(amount),
		C.GoString(itemType), C.GoString(itemID), decodeFields(fieldsJSON))
}

//export sp_add_progression_event
func sp_add_progression_event(status, part01, part02, part03, fieldsJSON *C.char) {
	get().AddProgressionEvent(C.GoString(status),
		C.GoString(part01), C.GoString(part02), C.GoString(part03),
		decodeFields(fieldsJSON))
}

//export sp_add_progression_event_with_score
func sp_add_progression_event_with_score(status, part01, part02, part03 *C.char, score C.longlong, fieldsJSON *C.char) {
	get().AddProgressionEventWithScore(C.GoString(status),
		C.GoString(part01), C.GoString(part02), C.GoString(part03),
		int64(score), decodeFields(fieldsJSON))
}

//export sp_add_design_event
func sp_add_design_event(eventID, fieldsJSON *C.char) {
	get().AddDesignEvent(C.GoString(eventID), decodeFields(fieldsJSON))
}

//export sp_add_design_event_with_value
func sp_add_design_event_with_value(eventID *C.char, value C.double, fieldsJSON *C.char) {
	get().AddDesignEventWithValue(C.GoString(eventID), float64(value), decodeFields(fieldsJSON))
}

//export sp_add_error_event
func sp_add_error_event(severity, message, fieldsJSON *C.char) {
	get().AddErrorEvent(C.GoString(severity), C.GoString(message), decodeFields(fieldsJSON))
}

//export sp_set_custom_dimension01
func sp_set_custom_dimension01(value *C.char) {
	get().SetCustomDimension01(C.GoString(value))
}

//export sp_set_custom_dimension02
func sp_set_custom_dimension02(value *C.char) {
	get().SetCustomDimension02(C.GoString(value))
}

//export sp_set_custom_dimension03
func sp_set_custom_dimension03(value *C.char) {
	get().SetCustomDimension03(C.GoString(value))
}

//export sp_set_global_custom_fields
func sp_set_global_custom_fields(fieldsJSON *C.char) {
	get().SetGlobalCustomFields(decodeFields(fieldsJSON))
}

//export sp_start_session
func sp_start_session() {
	get().StartSession()
}

//export sp_end_session
func sp_end_session() {
	get().EndSession()
}

//export sp_on_resume
func sp_on_resume() {
	get().OnResume()
}

//export sp_on_suspend
func sp_on_suspend() {
	get().OnSuspend()
}

//export sp_on_quit
func sp_on_quit() {
	get().OnQuit()
}

//export sp_flush
func sp_flush() {
	get().Flush()
}

//export sp_is_remote_configs_ready
func sp_is_remote_configs_ready() C.int {
	if get().IsRemoteConfigsReady() {
		return 1
	}
	return 0
}

//export sp_get_remote_configs_value_as_string
func sp_get_remote_configs_value_as_string(key, defaultValue *C.char) *C.char {
	return C.CString(get().GetRemoteConfigsValueAsString(C.GoString(key), C.GoString(defaultValue)))
}

//export sp_get_remote_configs_content_as_string
func sp_get_remote_configs_content_as_string() *C.char {
	return C.CString(get().GetRemoteConfigsContentAsString())
}

//export sp_get_ab_testing_id
func sp_get_ab_testing_id() *C.char {
	return C.CString(get().GetABTestingID())
}

//export sp_get_ab_testing_variant_id
func sp_get_ab_testing_variant_id() *C.char {
	return C.CString(get().GetABTestingVariantID())
}

func main() {}
