package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Navigation Errors (E100-E119)
	// ============================================

	"E100": {
		Category: CategoryNavigation,
		Message:  "No route matches path",
		Detail:   "No registered pattern accepts the path. The router falls back to a full page load.",
	},
	"E101": {
		Category: CategoryNavigation,
		Message:  "Page fetch failed",
		Detail:   "The transport failed or the server answered with a non-2xx status. The router falls back to a full page load.",
	},
	"E102": {
		Category: CategoryNavigation,
		Message:  "Navigation rejected by guard",
		Detail:   "A guard returned false or failed. The address bar and the page were left untouched.",
	},
	"E103": {
		Category: CategoryNavigation,
		Message:  "Navigation already in progress",
		Detail:   "Only one navigation runs at a time. The call was rejected, not queued; retry once the current navigation settles.",
	},
	"E104": {
		Category: CategoryNavigation,
		Message:  "Page render failed",
		Detail:   "Swapping the page content failed. The router falls back to a full page load.",
	},
	"E105": {
		Category: CategoryNavigation,
		Message:  "Invalid route pattern",
		Detail:   "Route patterns are slash separated; parameters use :name and a final catch-all uses *name.",
	},
	"E106": {
		Category: CategoryNavigation,
		Message:  "Invalid page payload",
		Detail:   "A page payload must carry non-empty HTML.",
	},

	// ============================================
	// Config Errors (E120-E129)
	// ============================================

	"E120": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "The configuration file could not be read or parsed.",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Configuration value out of range",
	},
	"E141": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
	},

	// ============================================
	// Transport Errors (E130-E139)
	// ============================================

	"E130": {
		Category: CategoryTransport,
		Message:  "Browser bridge disconnected",
		Detail:   "The browser page driving this router closed its connection.",
	},
	"E131": {
		Category: CategoryTransport,
		Message:  "Browser command timed out",
		Detail:   "The browser did not acknowledge a DOM command in time.",
	},
	"E132": {
		Category: CategoryTransport,
		Message:  "Browser command failed",
	},
}

// Registered reports whether code has a registered template.
func Registered(code string) bool {
	_, ok := registry[code]
	return ok
}
