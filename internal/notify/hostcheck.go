package notify

import (
	"fmt"
	"net"
	"strings"
)

// smtpPorts are the only ports the mailer will dial. Anything else usually
// means a typo or an attempt to reach a non-SMTP service.
var smtpPorts = map[int]bool{25: true, 465: true, 587: true, 2525: true}

// ValidateSMTPTarget rejects hosts that resolve to loopback, private, or
// link-local addresses, and non-SMTP ports. It runs at construction and again
// on every send, so a DNS record flipping to an internal address after startup
// still gets caught.
func ValidateSMTPTarget(host string, port int) error {
	if !smtpPorts[port] {
		return fmt.Errorf("non-standard SMTP port blocked")
	}

	host = strings.ToLower(strings.TrimSpace(host))
	switch host {
	case "", "localhost", "0.0.0.0", "127.0.0.1", "::1", "[::1]":
		return fmt.Errorf("localhost SMTP connections forbidden")
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("hostname resolution failed")
	}
	if len(ips) == 0 {
		return fmt.Errorf("hostname resolves to no addresses")
	}

	// Every resolved address must be publicly routable.
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
			ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
			return fmt.Errorf("connection to private network blocked")
		}
	}
	return nil
}
