// Package node is the composition root: it owns one Blockchain and one
// PeerService and wires them together, and holds the node's identity, the
// fields propagated in every handshake and stamped onto every block this
// node mines.
package node
