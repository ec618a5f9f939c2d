// Package client ties the connector, the IRC connection and the reconnect
// policy into one connection slot driven by a single event loop.
//
// Run owns all mutable state. Connect attempts, read loops and the reconnect
// timer run in their own goroutines and post events to Run, so the Events
// callbacks never run concurrently with each other.
package client
