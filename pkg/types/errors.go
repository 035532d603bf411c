package types

import "errors"

// Failure taxonomy shared by extractors, the proxy and orchestration.
var (
	ErrNoMatchingExtractor = errors.New("No extractor available for this URL")
	ErrFetchFailure        = errors.New("fetch failed")
	ErrPatternNotFound     = errors.New("pattern not found")
	ErrDecodeFailure       = errors.New("packed script decode failed")
	ErrExpiredLink         = errors.New("link expired")
	ErrInvalidProtocol     = errors.New("invalid protocol")
	ErrNoSource            = errors.New("no playable source")
	ErrUpstream            = errors.New("upstream provider error")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrMissingEpisode      = errors.New("episode id is required")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrNoMatchingExtractor, "no_matching_extractor"},
	{ErrFetchFailure, "fetch_failure"},
	{ErrPatternNotFound, "pattern_not_found"},
	{ErrDecodeFailure, "decode_failure"},
	{ErrExpiredLink, "expired_link"},
	{ErrInvalidProtocol, "invalid_protocol"},
	{ErrNoSource, "no_source"},
	{ErrUpstream, "upstream"},
	{ErrUnknownProvider, "unknown_provider"},
	{ErrMissingEpisode, "missing_episode"},
}

// ErrorKind returns a stable label for err, or "unknown".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "unknown"
}
