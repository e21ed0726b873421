package matchmake

import "errors"

// ErrNotEnoughCandidates means fewer than two distinct competitors exist.
var ErrNotEnoughCandidates = errors.New("not enough candidates to pair")
