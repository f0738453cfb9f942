package constants

// Timeline scoring weights per candidate set
const (
	FollowedPostWeight   = 5
	LikedPostWeight      = 2
	CommentedPostWeight  = 3
	BookmarkedPostWeight = 2
)

// Timeline limits
const (
	// DefaultTimelineLimit is used when a caller asks for zero or fewer entries
	DefaultTimelineLimit = 20
	// MaxTimelineLimit caps a single timeline page
	MaxTimelineLimit = 100
)

// Toggle execution constants
const (
	// DefaultToggleAttempts bounds how often a toggle that loses a race is retried
	DefaultToggleAttempts = 5
)

// Toggle outcomes
const (
	ToggleCreated = "created"
	ToggleRemoved = "removed"
)
