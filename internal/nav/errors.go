package nav

import "errors"

var (
	// ErrNoPath means the goal is unreachable from the start on the inflated grid.
	ErrNoPath = errors.New("no path found")
	// ErrInvalidWaypoint means a waypoint is outside the map or on a blocked cell.
	ErrInvalidWaypoint = errors.New("invalid waypoint")
	// ErrTooFewWaypoints means fewer than two waypoints were given to the planner.
	ErrTooFewWaypoints = errors.New("at least two waypoints required")
)
