package buildinfo

// These variables are injected at build time via -ldflags, e.g.:
//
//	-X github.com/huahua9185/auto-study-advanced/internal/buildinfo.Version=v0.0.0
//	-X github.com/huahua9185/auto-study-advanced/internal/buildinfo.Commit=abcdef
//	-X github.com/huahua9185/auto-study-advanced/internal/buildinfo.Date=2026-08-30
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

func Current() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}
