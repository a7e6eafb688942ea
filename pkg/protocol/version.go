package protocol

import (
	"context"

	"github.com/rs/zerolog/log"
)

// MaxSupportedVersion is the newest protocol version this client speaks.
const MaxSupportedVersion = 2

// AvailableVersion clamps a version advertised by a server to what the
// client supports.
func AvailableVersion(advertised int) int {
	if advertised > MaxSupportedVersion {
		return MaxSupportedVersion
	}
	return advertised
}

// ResolveVersion decides which version a response is parsed under, given
// the version the request was sent with and the marker the server echoed.
// An unset marker, or one that disagrees with a versioned request, is logged
// and the request version wins. Root requests are unversioned and take the
// echoed value as-is.
func ResolveVersion(ctx context.Context, requestVersion, echoed int, req *Request) int {
	if requestVersion == 0 {
		return echoed
	}
	if echoed == 0 {
		log.Ctx(ctx).Warn().
			Stringer("request", req).
			Msgf("server did not report an API version, assuming %d", requestVersion)
		return requestVersion
	}
	if echoed != requestVersion {
		log.Ctx(ctx).Warn().
			Stringer("request", req).
			Msgf("server replied with API version %d to a version %d request, parsing as %d",
				echoed, requestVersion, requestVersion)
		return requestVersion
	}
	return echoed
}
