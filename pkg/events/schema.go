package events

type EventType string

const (
	EventTypeEntitySynced EventType = "entity.synced"
	EventTypeLinkCreated  EventType = "link.created"
	EventTypeLinkMerged   EventType = "link.merged"
)
