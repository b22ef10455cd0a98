package envoybuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildAcmeChallengeRouteMatchesWellKnownPath(t *testing.T) {
	route := BuildAcmeChallengeRoute("abc123", "abc123.thumb")

	assert.Equal(t, AcmeChallengePath+"abc123", route.Match.GetPath())

	resp := route.GetDirectResponse()
	assert.Equal(t, uint32(200), resp.Status)
	assert.Equal(t, "abc123.thumb", resp.Body.GetInlineString())
}
