// Package protocol owns the Z21 LAN command set.
//
// Ownership boundary:
// - opcode and X-bus header constants
// - classification of one inbound packet into a typed Command
// - construction of outbound Messages
//
// Framing lives in protocol/frame, broadcast flag translation in
// protocol/bcflag and the client table in protocol/session.
package protocol
