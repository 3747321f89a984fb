package source

import "strings"

// Provider is a mail hosting provider inferred from an account address.
type Provider string

const (
	ProviderGoogle  Provider = "google"
	ProviderOutlook Provider = "outlook"
	ProviderYandex  Provider = "yandex"
	ProviderOther   Provider = "other"
)

var providerDomains = map[string]Provider{
	"gmail.com":      ProviderGoogle,
	"googlemail.com": ProviderGoogle,
	"outlook.com":    ProviderOutlook,
	"hotmail.com":    ProviderOutlook,
	"live.com":       ProviderOutlook,
	"yandex.ru":      ProviderYandex,
	"ya.ru":          ProviderYandex,
}

// Endpoint is a host and port pair for a mail protocol.
type Endpoint struct {
	Host string
	Port int
}

var imapEndpoints = map[Provider]Endpoint{
	ProviderGoogle:  {"imap.gmail.com", 993},
	ProviderOutlook: {"outlook.office365.com", 993},
	ProviderYandex:  {"imap.yandex.ru", 993},
}

var smtpEndpoints = map[Provider]Endpoint{
	ProviderGoogle:  {"smtp.gmail.com", 587},
	ProviderOutlook: {"smtp.office365.com", 587},
	ProviderYandex:  {"smtp.yandex.ru", 465},
}

// Domain returns the lower-cased domain part of an address.
func Domain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(address[at+1:]))
}

// ProviderFor infers the provider of address. extraGoogleDomains lists
// custom domains hosted on Google Workspace.
func ProviderFor(address string, extraGoogleDomains []string) Provider {
	domain := Domain(address)
	if domain == "" {
		return ProviderOther
	}
	if p, ok := providerDomains[domain]; ok {
		return p
	}
	for _, d := range extraGoogleDomains {
		if strings.EqualFold(strings.TrimSpace(d), domain) {
			return ProviderGoogle
		}
	}
	return ProviderOther
}

// DefaultIMAPEndpoint returns the well-known IMAP endpoint of p.
func DefaultIMAPEndpoint(p Provider) (Endpoint, bool) {
	e, ok := imapEndpoints[p]
	return e, ok
}

// DefaultSMTPEndpoint returns the well-known SMTP submission endpoint of p.
func DefaultSMTPEndpoint(p Provider) (Endpoint, bool) {
	e, ok := smtpEndpoints[p]
	return e, ok
}
