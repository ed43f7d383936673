package util

// MaskHostname keeps the first two characters of a host label, for alerts
// that leave the network.
func MaskHostname(hostname string) string {
	switch len(hostname) {
	case 0:
		return "srv-****"
	case 1:
		return "srv-" + hostname + "***"
	default:
		return "srv-" + hostname[:2] + "**"
	}
}
