// Package session owns the table of subscribed Z21 LAN clients.
//
// Ownership boundary:
// - client identity, broadcast subscription mask and liveness per slot
// - refresh/insert on contact, explicit log-off, expiry on tick
// - subscriber enumeration for broadcast fan-out
//
// The table is safe for concurrent use; every operation takes the table lock,
// so packet handling and the periodic tick never interleave inside it.
package session
