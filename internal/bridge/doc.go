// Package bridge connects a real-time audio server to an application
// processing routine.
//
// A Client owns one named connection to an audio server, a fixed set of
// input and output ports registered at construction, and the routine that
// runs once per audio block.
//
// Architecture overview:
//
//	Server.Open -> Conn.RegisterPort (in_0.., out_0..) -> Conn.SetProcessCallback
//	Start/Activate -> per block: process(nframes) -> ProcessFunc(Context)
//	Stop/Deactivate -> Close
//
// Lifecycle states are Constructed, Activated, Deactivated and Closed.
// Deactivated clients can be activated again; Closed is terminal and is
// reached from every state by Close, by a failed construction, or by a
// failed activation or deactivation.
//
// # Real-time rules
//
// The process path runs on the server's real-time thread. It does not
// allocate, lock, log or return errors. The routine inherits the same rules.
// Buffer views in a Context are borrowed from the server for one call and
// must not be retained after the routine returns.
//
// # Servers
//
// The Server, Conn and PortHandle interfaces are implemented by
// internal/server/jackserver (JACK), internal/server/malgoserver
// (soundcards via miniaudio) and internal/server/offline (deterministic,
// in-process, used for tests and file rendering).
package bridge
