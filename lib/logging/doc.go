// Package logging wires kvenv into dragonboat's logger package.
//
// Every kvenv package logs through a named logger.ILogger obtained with
// logger.GetLogger (config, engine, store, manager, cli). InitLoggers swaps the
// default factory for one producing lines of the form
//
//	2025/01/02 15:04:05 INFO  | manager  | opened store /var/lib/app/db (engine gdbx)
//
// and sets the level of all kvenv loggers at once. Without a call to
// InitLoggers the loggers still work, using dragonboat's default factory.
package logging
