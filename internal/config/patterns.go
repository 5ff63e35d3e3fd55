package config

import "regexp"

var (
	// basePattern accepts "" or a path starting with "/".
	basePattern = regexp.MustCompile(`^(/[^?#\s]*)?$`)

	pathPattern = regexp.MustCompile(`^/[^?#\s]*$`)
)
