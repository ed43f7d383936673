package system

import (
	"strings"
)

// DistroFromOSRelease extracts the normalized distribution ID from
// /etc/os-release content. Callers read the file through whichever
// transport reaches the host.
func DistroFromOSRelease(lines []string) string {
	for _, line := range lines {
		if strings.HasPrefix(line, "ID=") {
			distro := strings.TrimPrefix(line, "ID=")
			distro = strings.Trim(distro, "\"'")
			return normalizeDistro(distro)
		}
	}
	// ID_LIKE covers derivatives that set an unfamiliar ID
	for _, line := range lines {
		if strings.HasPrefix(line, "ID_LIKE=") {
			like := strings.Trim(strings.TrimPrefix(line, "ID_LIKE="), "\"'")
			for _, id := range strings.Fields(like) {
				if d := normalizeDistro(id); IsDebian(d) || IsRHEL(d) {
					return d
				}
			}
		}
	}
	return "unknown"
}

func normalizeDistro(distro string) string {
	distro = strings.ToLower(distro)
	switch {
	case strings.Contains(distro, "ubuntu"):
		return "ubuntu"
	case strings.Contains(distro, "debian"), strings.Contains(distro, "raspbian"),
		strings.Contains(distro, "kali"):
		return "debian"
	case strings.Contains(distro, "centos"):
		return "centos"
	case strings.Contains(distro, "rhel"), strings.Contains(distro, "redhat"),
		strings.Contains(distro, "rocky"), strings.Contains(distro, "almalinux"):
		return "rhel"
	case strings.Contains(distro, "fedora"):
		return "fedora"
	case strings.Contains(distro, "suse"):
		return "suse"
	case strings.Contains(distro, "arch"):
		return "arch"
	case strings.Contains(distro, "alpine"):
		return "alpine"
	default:
		return distro
	}
}

// IsRHEL returns true if the system uses rpm
func IsRHEL(distro string) bool {
	return distro == "rhel" || distro == "centos" || distro == "fedora" || distro == "suse"
}

// IsDebian returns true if the system uses dpkg
func IsDebian(distro string) bool {
	return distro == "debian" || distro == "ubuntu"
}
