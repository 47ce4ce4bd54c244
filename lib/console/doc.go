// Package console is the interactive front end of the chat client: a line
// REPL for plain terminals and pipes, and a bubbletea terminal UI.
//
// Both front ends accept the same commands:
//
//	/list                  show online clients
//	/msg <client_id> <text> send a private message
//	/exit                  disconnect
//
// Any other input is sent as a public message.
package console
