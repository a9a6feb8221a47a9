// Package neighbortable defines the table a node uses to reach its neighbors.
//
// The table is the node's only outbound capability: a packet can be sent to a
// node only while that node is a key of the table. The controller mutates it
// through AddSender and RemoveSender commands; removing an entry closes the
// link, which is how the loss of a peer propagates (later sends toward that id
// fail with peerlink.ErrUnreachable).
//
// Example usage:
//
//	table := neighbortable.New(nil)
//	table.Add(2, link)
//	if err := table.Send(2, p); err != nil {
//		logger.Warn("send failed", zap.Error(err))
//	}
package neighbortable
