package usercontext

// Locals keys shared by middlewares and controllers
const (
	KeyUserContext = "USER_CONTEXT"
	KeyAccountID   = "account_id"
	KeyRole        = "role"
	KeyCredential  = "credential_id"
)

// How a request authenticated.
const (
	ViaAPIKey = "api_key"
	ViaBearer = "bearer"
)
