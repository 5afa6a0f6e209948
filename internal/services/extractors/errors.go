package extractors

import "errors"

var errMissingHost = errors.New("missing host")
