package apperr

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrNoActiveNote       = errors.New("no active note")
	ErrStorageCorrupt     = errors.New("storage corrupt")
	ErrStorageReadFailed  = errors.New("storage read failed")
	ErrStorageWriteFailed = errors.New("storage write failed")

	ErrImportFormatInvalid  = errors.New("invalid format: expected an array of notes")
	ErrImportNoValidRecords = errors.New("no valid notes found in the file")
	ErrImportReadFailed     = errors.New("error reading file")
)
