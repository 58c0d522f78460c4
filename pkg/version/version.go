package version

import "fmt"

// Overridden at build time via -ldflags.
var (
	Version   = "v0.0.0-dev"
	GitCommit = "HEAD"
)

type SimpleVersion struct {
	Version   string `json:"version,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
}

func Get() SimpleVersion {
	return SimpleVersion{
		Version:   Version,
		GitCommit: GitCommit,
	}
}

func (s SimpleVersion) String() string {
	return fmt.Sprintf("%s (%s)", s.Version, s.GitCommit)
}
