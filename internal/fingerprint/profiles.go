// Package fingerprint holds the browser-identity profiles a session presents
// to the target site: the TLS client hello shape plus the matching declared
// headers. Profiles are picked at random per session so no two identities
// share an exact signature.
package fingerprint

import (
	"math/rand"

	"github.com/bogdanfinn/tls-client/profiles"
)

type Profile struct {
	Name           string
	UserAgent      string
	AcceptLanguage string
	Platform       string
	ClientProfile  profiles.ClientProfile
}

// Defaults returns the built-in profile set. The user agent must match the
// TLS profile's browser family; mixing them is a detectable inconsistency.
func Defaults() []Profile {
	return []Profile{
		{
			Name:           "chrome-133-win",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
			AcceptLanguage: "de-DE,de;q=0.9,en;q=0.8",
			Platform:       "\"Windows\"",
			ClientProfile:  profiles.Chrome_133,
		},
		{
			Name:           "chrome-131-mac",
			UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			AcceptLanguage: "de-DE,de;q=0.9,en;q=0.8",
			Platform:       "\"macOS\"",
			ClientProfile:  profiles.Chrome_131,
		},
		{
			Name:           "chrome-124-linux",
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			AcceptLanguage: "en-US,en;q=0.9,de;q=0.8",
			Platform:       "\"Linux\"",
			ClientProfile:  profiles.Chrome_124,
		},
		{
			Name:           "firefox-120-win",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
			AcceptLanguage: "de,en-US;q=0.7,en;q=0.3",
			Platform:       "\"Windows\"",
			ClientProfile:  profiles.Firefox_120,
		},
		{
			Name:           "safari-16-mac",
			UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Safari/605.1.15",
			AcceptLanguage: "de-DE,de;q=0.9",
			Platform:       "\"macOS\"",
			ClientProfile:  profiles.Safari_16_0,
		},
	}
}

// Random picks a profile from the given set, falling back to the defaults
// when the set is empty.
func Random(set []Profile) Profile {
	if len(set) == 0 {
		set = Defaults()
	}
	return set[rand.Intn(len(set))]
}
