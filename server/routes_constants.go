package server

// Route path constants
// All console routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteRoot   = "/"
	RouteLogin  = "/login"
	RouteSignup = "/signup"
	RouteLogout = "/logout"

	// Dashboard Routes
	RouteDashboard     = "/dashboard"
	RouteSerials       = "/dashboard/add-serialnum"
	RouteSerialAction  = "/dashboard/add-serialnum/{serial}/{action}"
	RouteMappings      = "/dashboard/listing-page"
	RouteMappingEdit   = "/dashboard/listing-page/{serial}/edit"
	RouteMappingUpdate = "/dashboard/listing-page/{serial}"
	RouteMappingDelete = "/dashboard/listing-page/{serial}/delete"

	// Operational Routes
	RouteHealth = "/health"

	// Static Asset Routes (patterns)
	RouteStaticCSS = "/css/{file}"
)

// Serial number actions accepted by RouteSerialAction
const (
	serialActionApprove    = "approve"
	serialActionAllocate   = "allocate"
	serialActionDeactivate = "deactivate"
)
