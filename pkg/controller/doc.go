// Package controller defines the boundary between a drone and the simulation
// controller that supervises it.
//
// The controller talks to a drone through two queues:
//   - Command: inbound control messages (AddSender, RemoveSender,
//     SetPacketDropRate, Crash). Commands have strict priority over packets.
//   - Event: outbound observations (PacketSent, PacketDropped,
//     ControllerShortcut). All drones of a simulation usually share one
//     event queue, so every Event carries the id of the node that emitted it.
//
// ControllerShortcut is the escape hatch for topology packets (Ack, Nack,
// FloodResponse) that cannot be routed: they cannot be NACKed themselves, so
// the drone hands them to the controller, which delivers them to their
// destination out of band.
//
// Example usage:
//
//	commands.Push(controller.SetPacketDropRate{Rate: 0.2})
//	commands.Push(controller.AddSender{ID: 7, Link: link})
//
//	for ev := range events.C() {
//		if ev.Kind == controller.ControllerShortcut {
//			deliverDirectly(ev.Packet)
//		}
//	}
package controller
