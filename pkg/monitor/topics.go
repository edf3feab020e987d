package monitor

const (
	TopicFleetEvents = "fleetctl.events"
	TopicUIMessages  = "fleetctl.ui.msgs"
)

const (
	DomainTypeSnapshot    = "fleet.snapshot"
	DomainTypeServiceDown = "service.down.observed"
	DomainTypeServiceUp   = "service.up.observed"
)

const (
	UITypeSnapshot    = "ui.fleet.snapshot"
	UITypeEventAppend = "ui.event.append"
)
