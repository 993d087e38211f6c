package cli

var (
	RunWithWriter = run
	SplitGCSPath  = splitGCSPath
	ProbeTargets  = probeTargets
)
