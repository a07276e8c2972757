package commands

import "errors"

var (
	// ErrCommandNotFound is returned when executing an unregistered command
	ErrCommandNotFound = errors.New("command not found")

	// ErrInvalidCommand is returned when a value does not satisfy the command contract
	ErrInvalidCommand = errors.New("invalid command")

	// ErrBuiltinCommand is returned when a command would shadow a built-in command
	ErrBuiltinCommand = errors.New("command name is reserved by a built-in command")
)
