// Package inspector attaches to web content inside the application under
// test through the simulator's remote debugger websocket.
//
// Inspectors are built by a Factory on demand, once a native driver exists
// for the session.
package inspector
