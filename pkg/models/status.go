package models

// Collaboration statuses. pending → in_progress → completed | failed; both terminal.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Rule and collaboration priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Agent presence states.
const (
	PresenceActive = "active"
	PresenceIdle   = "idle"
	PresenceBusy   = "busy"
)

// Announcement categories.
const (
	CategoryMessage  = "message"
	CategoryTask     = "task"
	CategoryCritical = "critical"
)

// Email digest frequencies.
const (
	FrequencyRealtime = "realtime"
	FrequencyHourly   = "hourly"
	FrequencyDaily    = "daily"
	FrequencyWeekly   = "weekly"
)

// Desktop notification permission states, as reported by the host environment.
const (
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
	PermissionDefault = "default"
)

// UserParticipant is the From/To value used for the human side of a message.
const UserParticipant = "user"

// Default limits.
const (
	DefaultMaxRequestBodyBytes  = 1 << 20 // 1 MiB
	DefaultCollaborationLimit   = 100
	MaxCollaborationListLimit   = 1000
	DefaultSSEChannelBuffer     = 256
	DefaultDispatcherQueueSize  = 64
	DefaultDispatcherConcurrent = 8
)

// IsTerminal reports whether a collaboration status accepts no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// ValidPriority reports whether p is one of the four rule priorities.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ValidCategory reports whether c is an announcement category.
func ValidCategory(c string) bool {
	switch c {
	case CategoryMessage, CategoryTask, CategoryCritical:
		return true
	}
	return false
}

// ValidFrequency reports whether f is an email digest frequency.
func ValidFrequency(f string) bool {
	switch f {
	case FrequencyRealtime, FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

// CanTransition reports whether a collaboration may move from one status to another.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusCompleted || to == StatusFailed
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}
