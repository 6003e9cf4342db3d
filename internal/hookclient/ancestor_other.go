//go:build !windows

package hookclient

// nearestAncestorAgentPID is Windows-only (spec.md §4.1); other platforms
// never inject agent_pid.
func nearestAncestorAgentPID() (int, bool) {
	return 0, false
}
