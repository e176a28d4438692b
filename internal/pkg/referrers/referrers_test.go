package referrers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"statwise/internal/pkg/referrers"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		referrer string
		ownHost  string
		want     referrers.Classification
		ok       bool
	}{
		{"search engine", "https://www.google.com/search?q=x", "example.com", referrers.Classification{Name: "Google", Channel: referrers.ChannelSearch}, true},
		{"subdomain of known", "https://m.facebook.com/", "example.com", referrers.Classification{Name: "Facebook", Channel: referrers.ChannelSocial}, true},
		{"community", "https://news.ycombinator.com/item?id=1", "example.com", referrers.Classification{Name: "Hacker News", Channel: referrers.ChannelCommunity}, true},
		{"unknown site", "https://myblog.io/post", "example.com", referrers.Classification{Name: "myblog.io", Channel: referrers.ChannelReferral}, true},
		{"self referral", "https://www.example.com/pricing", "example.com", referrers.Classification{}, false},
		{"direct", "", "example.com", referrers.Classification{}, false},
		{"garbage", "::not a url", "example.com", referrers.Classification{}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := referrers.Classify(tc.referrer, tc.ownHost)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFriendlyName(t *testing.T) {
	assert.Equal(t, "Google", referrers.FriendlyName("WWW.GOOGLE.COM"))
	assert.Equal(t, "X/Twitter", referrers.FriendlyName("mobile.twitter.com"))
	assert.Equal(t, "example.com", referrers.FriendlyName("www.example.com"))
}
