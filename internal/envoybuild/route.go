package envoybuild

import (
	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	routev3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
)

// AcmeChallengePath is the HTTP-01 well-known path prefix; the full
// match path is this plus the token.
const AcmeChallengePath = "/.well-known/acme-challenge/"

// BuildAcmeChallengeRoute builds a direct-response route that answers
// GET /.well-known/acme-challenge/{token} with the given
// key-authorization body and status 200, per spec.md §4.3 step 2.
func BuildAcmeChallengeRoute(token, keyAuthorization string) *routev3.Route {
	return &routev3.Route{
		Name: "acme-challenge-" + token,
		Match: &routev3.RouteMatch{
			PathSpecifier: &routev3.RouteMatch_Path{Path: AcmeChallengePath + token},
		},
		Action: &routev3.Route_DirectResponse{
			DirectResponse: &routev3.DirectResponseAction{
				Status: 200,
				Body: &corev3.DataSource{
					Specifier: &corev3.DataSource_InlineString{InlineString: keyAuthorization},
				},
			},
		},
	}
}
