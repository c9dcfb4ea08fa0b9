package platform

import (
	"net/url"
	"strings"
)

// Name identifies a supported platform. It is also the route prefix and the
// cookie file stem.
type Name string

const (
	YouTube   Name = "youtube"
	Facebook  Name = "facebook"
	Instagram Name = "instagram"
	TikTok    Name = "tiktok"
	Twitter   Name = "twitter"
)

// Platform describes how downloads from one site are planned.
type Platform struct {
	Name  Name
	Label string
	// Hosts are matched exactly or as a parent domain.
	Hosts []string
	// VideoFormat and AudioFormat are the extractor selectors used when the
	// request names no format.
	VideoFormat string
	AudioFormat string
	// MobileRelay re-encodes downloads for phone compatibility through a temp
	// file instead of streaming them.
	MobileRelay bool
}

// All lists the supported platforms in route order.
var All = []Platform{
	{
		Name:        YouTube,
		Label:       "YouTube",
		Hosts:       []string{"youtube.com", "youtu.be", "youtube-nocookie.com"},
		VideoFormat: "best[ext=mp4]/best",
		AudioFormat: "bestaudio[ext=m4a]/bestaudio/best",
	},
	{
		Name:        Facebook,
		Label:       "Facebook",
		Hosts:       []string{"facebook.com", "fb.watch", "fb.com"},
		VideoFormat: "best[ext=mp4]/best",
		AudioFormat: "bestaudio/best",
	},
	{
		Name:        Instagram,
		Label:       "Instagram",
		Hosts:       []string{"instagram.com", "instagr.am"},
		VideoFormat: "best",
		AudioFormat: "bestaudio/best",
		MobileRelay: true,
	},
	{
		Name:        TikTok,
		Label:       "TikTok",
		Hosts:       []string{"tiktok.com"},
		VideoFormat: "best[ext=mp4]/best",
		AudioFormat: "bestaudio/best",
	},
	{
		Name:        Twitter,
		Label:       "Twitter/X",
		Hosts:       []string{"twitter.com", "x.com"},
		VideoFormat: "best[ext=mp4]/best",
		AudioFormat: "bestaudio/best",
	},
}

// Lookup returns the platform registered under name.
func Lookup(name string) (Platform, bool) {
	for _, p := range All {
		if string(p.Name) == strings.ToLower(name) {
			return p, true
		}
	}
	return Platform{}, false
}

// Detect returns the platform owning rawURL's host.
func Detect(rawURL string) (Platform, bool) {
	for _, p := range All {
		if p.Matches(rawURL) {
			return p, true
		}
	}
	return Platform{}, false
}

// Matches reports whether rawURL is an http(s) URL on one of p's hosts.
func (p Platform) Matches(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}
	for _, h := range p.Hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}
