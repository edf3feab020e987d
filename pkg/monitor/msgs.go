package monitor

type SnapshotMsg struct {
	Snapshot Snapshot
}

type EventLogAppendMsg struct {
	Entry EventLogEntry
}
