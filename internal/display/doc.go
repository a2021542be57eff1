// Package display drives a character display through a local driver
// daemon listening on a unix socket.
//
// Each command is one JSON object per line:
//
//	{"cmd":"Move","args":{"x":0,"y":1}}
//	{"cmd":"Buffer","args":{"text":"ready","directly":true}}
//	{"cmd":"Clear","args":null}
//
// A failed write triggers exactly one reconnect before the command fails
// with a DriverError.
package display
