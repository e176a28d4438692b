package referrers

import (
	"net/url"
	"strings"
)

// Channel groups referrers by the kind of site they come from.
type Channel string

const (
	ChannelSearch    Channel = "search"
	ChannelSocial    Channel = "social"
	ChannelCommunity Channel = "community"
	ChannelNews      Channel = "news"
	ChannelEmail     Channel = "email"
	ChannelShortener Channel = "shortener"
	ChannelReferral  Channel = "referral"
)

type known struct {
	name    string
	channel Channel
}

var knownReferrers = map[string]known{
	"google.com":    {"Google", ChannelSearch},
	"google.co.uk":  {"Google", ChannelSearch},
	"google.de":     {"Google", ChannelSearch},
	"google.fr":     {"Google", ChannelSearch},
	"google.es":     {"Google", ChannelSearch},
	"google.it":     {"Google", ChannelSearch},
	"google.ca":     {"Google", ChannelSearch},
	"google.com.au": {"Google", ChannelSearch},
	"google.co.jp":  {"Google", ChannelSearch},
	"google.com.br": {"Google", ChannelSearch},
	"bing.com":      {"Bing", ChannelSearch},
	"duckduckgo.com": {"DuckDuckGo", ChannelSearch},
	"yahoo.com":     {"Yahoo", ChannelSearch},
	"baidu.com":     {"Baidu", ChannelSearch},
	"yandex.ru":     {"Yandex", ChannelSearch},
	"ecosia.org":    {"Ecosia", ChannelSearch},
	"kagi.com":      {"Kagi", ChannelSearch},

	"x.com":           {"X/Twitter", ChannelSocial},
	"twitter.com":     {"X/Twitter", ChannelSocial},
	"t.co":            {"X/Twitter", ChannelSocial},
	"facebook.com":    {"Facebook", ChannelSocial},
	"fb.com":          {"Facebook", ChannelSocial},
	"instagram.com":   {"Instagram", ChannelSocial},
	"linkedin.com":    {"LinkedIn", ChannelSocial},
	"lnkd.in":         {"LinkedIn", ChannelSocial},
	"tiktok.com":      {"TikTok", ChannelSocial},
	"pinterest.com":   {"Pinterest", ChannelSocial},
	"threads.net":     {"Threads", ChannelSocial},
	"bsky.app":        {"Bluesky", ChannelSocial},
	"mastodon.social": {"Mastodon", ChannelSocial},
	"youtube.com":     {"YouTube", ChannelSocial},
	"youtu.be":        {"YouTube", ChannelSocial},

	"reddit.com":           {"Reddit", ChannelCommunity},
	"news.ycombinator.com": {"Hacker News", ChannelCommunity},
	"lobste.rs":            {"Lobsters", ChannelCommunity},
	"producthunt.com":      {"Product Hunt", ChannelCommunity},
	"dev.to":               {"DEV Community", ChannelCommunity},
	"github.com":           {"GitHub", ChannelCommunity},
	"stackoverflow.com":    {"Stack Overflow", ChannelCommunity},
	"discord.com":          {"Discord", ChannelCommunity},
	"t.me":                 {"Telegram", ChannelCommunity},

	"nytimes.com":     {"NY Times", ChannelNews},
	"theguardian.com": {"The Guardian", ChannelNews},
	"bbc.co.uk":       {"BBC", ChannelNews},
	"bbc.com":         {"BBC", ChannelNews},
	"techcrunch.com":  {"TechCrunch", ChannelNews},
	"theverge.com":    {"The Verge", ChannelNews},

	"mail.google.com":  {"Gmail", ChannelEmail},
	"outlook.live.com": {"Outlook", ChannelEmail},
	"mail.yahoo.com":   {"Yahoo Mail", ChannelEmail},
	"mail.proton.me":   {"Proton Mail", ChannelEmail},

	"bit.ly":      {"Bitly", ChannelShortener},
	"tinyurl.com": {"TinyURL", ChannelShortener},
}

// Classification is the derived source of a visit.
type Classification struct {
	Name    string
	Channel Channel
}

// Classify derives a source from a referrer URL. Empty, unparsable and
// self referrals report ok=false.
func Classify(referrer, ownHost string) (Classification, bool) {
	if referrer == "" {
		return Classification{}, false
	}

	u, err := url.Parse(referrer)
	if err != nil || u.Hostname() == "" {
		return Classification{}, false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == strings.TrimPrefix(strings.ToLower(ownHost), "www.") {
		return Classification{}, false
	}

	if k, ok := lookup(host); ok {
		return Classification{Name: k.name, Channel: k.channel}, true
	}
	return Classification{Name: host, Channel: ChannelReferral}, true
}

// FriendlyName returns a display name for a referrer hostname.
func FriendlyName(hostname string) string {
	host := strings.TrimPrefix(strings.ToLower(hostname), "www.")
	if k, ok := lookup(host); ok {
		return k.name
	}
	return host
}

func lookup(host string) (known, bool) {
	if k, ok := knownReferrers[host]; ok {
		return k, true
	}
	for domain, k := range knownReferrers {
		if strings.HasSuffix(host, "."+domain) {
			return k, true
		}
	}
	return known{}, false
}
