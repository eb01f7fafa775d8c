package region

import "errors"

var (
	ErrWALNotInitialized = errors.New("WAL not initialized")
	ErrEmptyRow          = errors.New("empty row key")
	ErrEmptyColumn       = errors.New("empty column key")
	ErrNoRegion          = errors.New("no region for row")
)
