package version

import (
	"encoding/json"
	"runtime"
	rdebug "runtime/debug"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/metal-toolbox/devicesync/internal/metrics"
)

// set by the go linker at build time
var (
	GitCommit  string
	GitBranch  string
	GitSummary string
	BuildDate  string
	AppVersion string
)

type Version struct {
	GitCommit  string `json:"git_commit"`
	GoVersion  string `json:"go_version"`
	GitBranch  string `json:"git_branch"`
	GitSummary string `json:"git_summary"`
	BuildDate  string `json:"build_date"`
	AppVersion string `json:"app_version"`
}

func Current() *Version {
	return &Version{
		GitBranch:  GitBranch,
		GitCommit:  gitCommit(),
		GitSummary: GitSummary,
		BuildDate:  BuildDate,
		AppVersion: AppVersion,
		GoVersion:  runtime.Version(),
	}
}

// gitCommit falls back to the vcs stamp embedded by the go toolchain.
func gitCommit() string {
	if GitCommit != "" {
		return GitCommit
	}

	info, ok := rdebug.ReadBuildInfo()
	if !ok {
		return ""
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}

	return ""
}

func (v *Version) AsLogFields() []any {
	return []any{
		"version", v.AppVersion,
		"commit", v.GitCommit,
		"branch", v.GitBranch,
		"buildDate", v.BuildDate,
		"goVersion", v.GoVersion,
	}
}

func (v *Version) String() string {
	b, err := json.Marshal(v)
	if err != nil {
		return v.AppVersion
	}

	return string(b)
}

// ExportBuildInfoMetric registers a constant gauge labelled with the build information.
func ExportBuildInfoMetric() error {
	v := Current()

	buildInfo := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "devicesync_build_info",
			Help: "A metric with a constant '1' value, labeled by version, revision, branch and goversion.",
			ConstLabels: prometheus.Labels{
				"version":   v.AppVersion,
				"revision":  v.GitCommit,
				"branch":    v.GitBranch,
				"goversion": v.GoVersion,
			},
		},
		func() float64 { return 1 },
	)

	if err := metrics.Registry.Register(buildInfo); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}

		return errors.Wrap(err, "failed to register build info metric")
	}

	return nil
}
