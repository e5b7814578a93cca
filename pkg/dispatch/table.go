package dispatch

import "strings"

// The closed dispatch table: known method names and ordered pattern rules
// deciding the safe default value and the logging policy for calls that
// cannot be forwarded to a live module API.

// statusGetters are polled every frame by game logic; their defaults must
// stay silent to avoid log flooding.
var statusGetters = map[string]struct{}{
	"get_status":       {},
	"get_boost_status": {},
}

// numericGetters map known getters to their documented neutral values.
var numericGetters = map[string]float64{
	"get_boost_multiplier": 1.0,
	"get_speed_multiplier": 1.0,
	"get_duration":         0.0,
	"get_remaining_time":   0.0,
}

// knownActions are bare action names outside the prefix rules that still
// indicate a caller assumption mismatch worth surfacing.
var knownActions = map[string]struct{}{
	"reset":   {},
	"trigger": {},
}

// unavailableStatus is the default for known status getters.
func unavailableStatus(moduleID string) map[string]interface{} {
	return map[string]interface{}{
		"module":    moduleID,
		"available": false,
		"active":    false,
	}
}

// notFoundStatus is the default for unknown *_status methods.
func notFoundStatus(moduleID, method string) map[string]interface{} {
	return map[string]interface{}{
		"module": moduleID,
		"method": method,
		"error":  "method not found",
	}
}

// defaultFor computes the safe default for a method that cannot be forwarded
// and whether the miss should be logged. Rules are evaluated in order.
func defaultFor(moduleID, method string) (value interface{}, warn bool) {
	if _, ok := statusGetters[method]; ok {
		return unavailableStatus(moduleID), false
	}
	if v, ok := numericGetters[method]; ok {
		return v, false
	}
	if hasAnyPrefix(method, "is_", "has_", "can_") {
		return false, false
	}
	if _, ok := knownActions[method]; ok {
		return false, true
	}
	if hasAnyPrefix(method, "activate_", "deactivate_") {
		return false, true
	}
	if hasAnyPrefix(method, "set_", "merge_") {
		// Setters degrade to no-ops.
		return false, true
	}
	if strings.HasSuffix(method, "_status") {
		return notFoundStatus(moduleID, method), true
	}
	return nil, true
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
