// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityMember                      // Access token required
	SecurityAdmin                       // Access token with the admin role required
)

// EndpointSecurityConfig maps HTTP route names and gRPC full method names to
// their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Health - Public
	"health":                      SecurityPublic,
	"/grpc.health.v1.Health/Check": SecurityPublic,
	"/grpc.health.v1.Health/Watch": SecurityPublic,

	// Availability - Member
	"availability.check":     SecurityMember,
	"availability.listTools": SecurityMember,

	// Reservations - Member
	"reservations.create":   SecurityMember,
	"reservations.get":      SecurityMember,
	"reservations.cancel":   SecurityMember,
	"reservations.checkout": SecurityMember,
	"reservations.mine":     SecurityMember,
	"reservations.history":  SecurityMember,

	// Loans - Member
	"loans.checkout": SecurityMember,
	"loans.get":      SecurityMember,
	"loans.return":   SecurityMember,

	// Admin
	"admin.reservations.search": SecurityAdmin,
	"admin.loans.search":        SecurityAdmin,
	"admin.loans.overdue":       SecurityAdmin,
}

// GetSecurityLevel returns the security level for a given route
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAdmin
}
