package engine

// ephemeralPaths maps a technology kind to the structural paths known to
// change on every poll without representing a real configuration change.
// This table is hand-curated; the same data lives in the watcher for each
// technology. Paths use dot-separated segments, with "*" matching any
// sequence index.
var ephemeralPaths = map[string][]string{
	"redshift": {
		"RestoreStatus",
		"ClusterStatus",
		"ClusterParameterGroups.ParameterApplyStatus",
		"ClusterParameterGroups.ClusterParameterStatusList.ParameterApplyErrorDescription",
		"ClusterParameterGroups.ClusterParameterStatusList.ParameterApplyStatus",
		"ClusterRevisionNumber",
	},
	"securitygroup": {
		"assigned_to",
	},
	"iamuser": {
		"user.password_last_used",
		"accesskeys.*.LastUsedDate",
		"accesskeys.*.Region",
		"accesskeys.*.ServiceName",
	},
}

// DefaultEphemeralPaths returns the built-in ephemeral paths for a
// technology kind. Unknown kinds return nil (no filtering).
func DefaultEphemeralPaths(kind string) []string {
	return ephemeralPaths[kind]
}

// EphemeralPaths returns the ephemeral paths for a kind, with any extra
// paths from configuration appended after the built-ins.
func (d *Datastore) EphemeralPaths(kind string) []string {
	base := ephemeralPaths[kind]
	extra := d.extraEphemeral[kind]
	if len(extra) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(extra))
	merged = append(merged, base...)
	merged = append(merged, extra...)
	return merged
}
