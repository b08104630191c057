package obs

// Set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

// SetBuildInfo publishes build_info{version,commit} 1.
func (m *Metrics) SetBuildInfo(version, commit string) {
	m.buildInfo.Reset()
	m.buildInfo.WithLabelValues(version, commit).Set(1)
}
