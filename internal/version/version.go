// Package version отдаёт сведения о сборке сервиса склада.
package version

import (
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// Заполняются через -ldflags "-X .../internal/version.version=...".
var (
	version = "dev"
	commit  = ""
	date    = ""
)

// Info описывает сборку.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version,omitempty"`
}

// Get возвращает значения из -ldflags. Пустые поля дополняются из
// debug.ReadBuildInfo, что покрывает сборку через go install.
func Get() Info {
	info := Info{Version: version, Commit: commit, Date: date}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = withBuildInfo(info, bi)
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return info
}

// GetVersion возвращает только версию.
func GetVersion() string { return Get().Version }

func (i Info) String() string {
	return fmt.Sprintf("warehouse version=%s commit=%s date=%s", i.Version, i.Commit, i.Date)
}

// Fields отдаёт сведения о сборке в виде полей logrus.
func (i Info) Fields() log.Fields {
	return log.Fields{"version": i.Version, "commit": i.Commit, "build_date": i.Date, "go": i.GoVersion}
}

func withBuildInfo(info Info, bi *debug.BuildInfo) Info {
	info.GoVersion = bi.GoVersion
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		}
	}
	return info
}
