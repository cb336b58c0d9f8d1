/*
Package domain defines the core data model of the VR experiment supervisor:
value sets, counterbalanced orders, the protocol sequence, the single mutable
session state, and the UDP command messages exchanged with the VR client.

Types here carry no behavior beyond construction and validation helpers; the
protocol transitions live in internal/protocol and the orchestration in
pkg/session.
*/
package domain
