// Package eventlog provides interfaces for the controller's event journal.
//
// Every event a drone reports (PacketSent, PacketDropped, ControllerShortcut)
// is appended to an append-only, topic-partitioned log. Each node gets its own
// topic, so the history of one drone can be read or replayed independently:
//   - EventRecord: one journal entry with offset, topic, payload, timestamp and headers
//   - EventLog: append, read, replay, compact and statistics
//
// Example usage:
//
//	// Append an encoded event to the journal of node 3
//	record, err := log.AppendToTopic(ctx, "node.3", eventlog.NewRecordWithHeaders("node.3", payload, headers))
//	if err != nil {
//		return err
//	}
//
//	// Read at most 100 events starting at offset 0
//	records, err := log.ReadFromTopic(ctx, "node.3", 0, 100)
//
//	// Replay everything from offset 10
//	recordChan, errChan := log.ReplayTopic(ctx, "node.3", 10)
//	for record := range recordChan {
//		process(record)
//	}
//	if err := <-errChan; err != nil {
//		return err
//	}
package eventlog
