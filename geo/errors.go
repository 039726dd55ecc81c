package geo

import "errors"

// ErrInvalidRect indicates min coordinates exceeding max coordinates, or NaN.
var ErrInvalidRect = errors.New("geo: rect requires xmin <= xmax and ymin <= ymax")
