package config

import (
	"net"
	"net/url"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the application is running inside a Docker container.
// Detection is based on the presence of /.dockerenv. The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveURLForDocker rewrites a localhost model endpoint (for example a
// local OpenAI-compatible server on the host) to host.docker.internal when
// running inside a container.
func ResolveURLForDocker(rawURL string) string {
	return resolveURLForDocker(rawURL, IsRunningInDocker())
}

func resolveURLForDocker(rawURL string, inDocker bool) string {
	if !inDocker || rawURL == "" {
		return rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" {
		return rawURL
	}

	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort("host.docker.internal", port)
	} else {
		u.Host = "host.docker.internal"
	}
	return u.String()
}
