package sixd6

import "errors"

var (
	ErrMalformedHeader    = errors.New("malformed 6D6 header")
	ErrUnsupportedVersion = errors.New("unsupported 6D6 header version")
	ErrChannelCount       = errors.New("6D6 channel count out of range")
	ErrHeaderTooLarge     = errors.New("6D6 header does not fit in one block")
	ErrCommentTruncated   = errors.New("6D6 comment does not fit in header")
	ErrSkewRange          = errors.New("6D6 skew out of range")
	ErrInvalidContainer   = errors.New("not a 6D6 container")
)
