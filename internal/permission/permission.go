package permission

// Role is a user role as stored in the profile registry.
type Role string

const (
	RoleDriver              Role = "driver"
	RolePassenger           Role = "passenger"
	RoleVehicleMaintenance  Role = "vehicle_maintenance"
	RoleSystemAdministrator Role = "system_administrator"
	RoleGuest               Role = "guest"
)

// Wildcard grants every action tag.
const Wildcard = "ALL_PERMISSIONS"

// table is closed: roles not listed here are denied everything.
var table = map[Role]map[string]struct{}{
	RoleDriver: set(
		"CONTROL_AC", "PLAY_MUSIC", "PAUSE_MUSIC", "STOP_MUSIC", "PREVIOUS_SONG", "NEXT_SONG",
		"CONFIRM_ACTION", "REJECT_ACTION", "CONTROL_MUSIC", "SET_VOLUME", "SET_VOLUME_HIGH",
		"START_NAVIGATION", "NAVIGATE", "ANSWER_CALL", "VIEW_CRITICAL_ALERTS", "EXECUTE_COMMAND",
		"GET_WEATHER", "TELL_JOKE", "SEND_MESSAGE", "VIEW_DIAGNOSTICS", "RESET_SYSTEM",
	),
	RolePassenger: set(
		"PLAY_MUSIC", "PAUSE_MUSIC", "STOP_MUSIC", "PREVIOUS_SONG", "NEXT_SONG", "CONTROL_MUSIC",
		"SET_VOLUME", "SET_VOLUME_MEDIUM", "CONFIRM_ACTION", "REJECT_ACTION",
		"REQUEST_NAVIGATION_DESTINATION", "EXECUTE_PASSENGER_COMMAND", "GET_WEATHER", "TELL_JOKE",
		"SEND_MESSAGE", "ZOOM_OUT_MAP",
	),
	RoleVehicleMaintenance: set(
		"VIEW_SYSTEM_DIAGNOSTICS", "RESET_SYSTEM_SETTINGS", "RESET_SYSTEM", "VIEW_DIAGNOSTICS",
		"RUN_TESTS", "CONTROL_AC", "SET_VOLUME", "PLAY_MUSIC", "PAUSE_MUSIC", "CONFIRM_ACTION",
		"REJECT_ACTION",
	),
	RoleSystemAdministrator: set(Wildcard),
	RoleGuest: set(
		"PLAY_GUEST_PLAYLIST", "PLAY_MUSIC", "PAUSE_MUSIC", "CONFIRM_ACTION", "REJECT_ACTION",
		"GET_WEATHER", "TELL_JOKE", "SET_VOLUME", "PREVIOUS_SONG", "NEXT_SONG", "CONTROL_MUSIC",
	),
}

func set(tags ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		m[t] = struct{}{}
	}
	return m
}

// Known reports whether r is one of the closed set of roles.
func Known(r Role) bool {
	_, ok := table[r]
	return ok
}

// RoleAllows is the pure table lookup. Unknown roles and empty tags are denied.
func RoleAllows(r Role, actionTag string) bool {
	perms, ok := table[r]
	if !ok || actionTag == "" {
		return false
	}
	if _, ok := perms[Wildcard]; ok {
		return true
	}
	_, ok = perms[actionTag]
	return ok
}

// RoleLookup resolves a user id to a role. ok is false for unknown users.
type RoleLookup interface {
	RoleOf(userID string) (Role, bool)
}

type Checker struct {
	roles RoleLookup
}

func NewChecker(roles RoleLookup) *Checker {
	return &Checker{roles: roles}
}

// IsPermitted is side-effect free and fails closed.
func (c *Checker) IsPermitted(userID, actionTag string) bool {
	if c == nil || c.roles == nil {
		return false
	}
	role, ok := c.roles.RoleOf(userID)
	if !ok {
		return false
	}
	return RoleAllows(role, actionTag)
}
