// Package rerrors defines the error taxonomy used to pick a recovery
// policy at each layer of the server: a malformed frame resets the
// codec and keeps the connection open, a bad command replies and keeps
// going, a storage failure replies and is counted, an I/O failure tears
// the connection down, and an initialization failure stops the process.
package rerrors

import "github.com/pkg/errors"

// Class identifies which recovery policy an error belongs to.
type Class int

const (
	ClassProtocol Class = iota
	ClassCommand
	ClassStorage
	ClassIO
	ClassInit
)

func (c Class) String() string {
	switch c {
	case ClassProtocol:
		return "protocol"
	case ClassCommand:
		return "command"
	case ClassStorage:
		return "storage"
	case ClassIO:
		return "io"
	case ClassInit:
		return "init"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the class that determines how
// the caller should recover from it.
type Error struct {
	Class Class
	cause error
}

func (e *Error) Error() string {
	return e.cause.Error()
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newf(class Class, format string, args ...interface{}) *Error {
	return &Error{Class: class, cause: errors.Errorf(format, args...)}
}

func wrap(class Class, err error, msg string) *Error {
	return &Error{Class: class, cause: errors.Wrap(err, msg)}
}

func Protocolf(format string, args ...interface{}) *Error { return newf(ClassProtocol, format, args...) }
func Commandf(format string, args ...interface{}) *Error  { return newf(ClassCommand, format, args...) }
func Storagef(format string, args ...interface{}) *Error  { return newf(ClassStorage, format, args...) }
func IOf(format string, args ...interface{}) *Error       { return newf(ClassIO, format, args...) }
func Initf(format string, args ...interface{}) *Error     { return newf(ClassInit, format, args...) }

func WrapStorage(err error, msg string) *Error { return wrap(ClassStorage, err, msg) }
func WrapIO(err error, msg string) *Error      { return wrap(ClassIO, err, msg) }
func WrapInit(err error, msg string) *Error    { return wrap(ClassInit, err, msg) }

// ClassOf reports the recovery class of err, defaulting to ClassCommand
// for errors that never went through this package (e.g. a plain
// fmt.Errorf from deep inside a handler).
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassCommand
}
