/*
Package ports defines the driven-side interfaces of the supervisor: order
persistence, command broadcasting, session archival and status observation.

Adapters live under internal/adapters. The package also ships a reusable
contract suite (RunOrderStoreContract) so every OrderStore implementation is
verified against the same semantics.
*/
package ports
