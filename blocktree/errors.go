package blocktree

import "errors"

var ErrInvalidParameters = errors.New("invalid block cluster parameters")
