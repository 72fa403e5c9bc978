package gateway

// Backend endpoints, relative to the API base URL
const (
	PathLogin      = "/login/"
	PathSignup     = "/signup/"
	PathLogout     = "/logout/"
	PathRefresh    = "/token/refresh/"
	PathVerifyAuth = "/verify-auth/"

	PathSerialNumbers    = "/get_serial_numbers/"
	PathAddSerialNumber  = "/add_serial_number/"
	PathApproveSerial    = "/approve_serial_number/"
	PathAllocateSerial   = "/allocate_serial_number/"
	PathDeactivateSerial = "/deactivate_serial_number/"
	PathCustomerMappings = "/get_customer_mappings/"
	PathCreateMapping    = "/create_customer_mapping/"
	PathUpdateMapping    = "/update_customer_mapping/"
	PathDeleteMappingFmt = "/delete_customer_mapping/%s/"
)

// DefaultExcludedPaths never trigger a renewal on 401. A 401 from these
// means bad credentials or a dead refresh token, so retrying cannot help.
var DefaultExcludedPaths = []string{
	PathRefresh,
	PathVerifyAuth,
	PathLogin,
	PathSignup,
}
