package models

import "time"

// SyncEntity is the raw entity carried by a sync message.
type SyncEntity struct {
	Type             string            `json:"type" validate:"required"`
	SourceSystemName string            `json:"sourceSystemName" validate:"required"`
	SourceSystemID   string            `json:"sourceSystemId" validate:"required"`
	Data             map[string]string `json:"data" validate:"required"`
}

func (e SyncEntity) Reference() EntityReference {
	return NewEntityReference(e.Type, e.SourceSystemName, e.SourceSystemID)
}

// SyncQueueItem is the inbound sync message.
type SyncQueueItem struct {
	Entity            *SyncEntity `json:"entity" validate:"required"`
	PointInTime       *time.Time  `json:"pointInTime,omitempty"`
	InternalRequestID string      `json:"internalRequestId,omitempty"`
	ExternalRequestID string      `json:"externalRequestId,omitempty"`
}

// EntityForMatching is the inbound match message.
type EntityForMatching struct {
	Type             string `json:"type" validate:"required"`
	SourceSystemName string `json:"sourceSystemName" validate:"required"`
	SourceSystemID   string `json:"sourceSystemId" validate:"required"`
}

func (e EntityForMatching) Reference() EntityReference {
	return NewEntityReference(e.Type, e.SourceSystemName, e.SourceSystemID)
}
