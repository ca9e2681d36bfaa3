package coordinator

import "errors"

var (
	errMediaItemMismatch = errors.New("response names a different media item")
	errMissingReport     = errors.New("response carried no signed report")
)
