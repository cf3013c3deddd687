package config

// guardSegment replaces segments which would name destination directory
// itself or its parent.
func guardSegment(segment string) string {
	switch segment {
	case "", ".", "..":
		return "_" + segment
	}
	return segment
}
