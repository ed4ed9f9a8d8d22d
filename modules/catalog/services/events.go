package services

import "github.com/google/uuid"

type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseUpdate  Phase = "update"
)

type ProgressChangedEvent struct {
	RunID   uuid.UUID
	Phase   Phase
	Percent int
}

type NotificationLevel string

const (
	LevelSuccess NotificationLevel = "success"
	LevelWarning NotificationLevel = "warning"
	LevelError   NotificationLevel = "error"
)

// NotificationEvent is a user-facing milestone message.
type NotificationEvent struct {
	RunID   uuid.UUID
	Level   NotificationLevel
	Message string
}

type ChunkCompletedEvent struct {
	RunID  uuid.UUID
	Total  int
	Result ChunkResult
}
