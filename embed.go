package tutorsite

import "embed"

// templateFS contains the HTML templates shipped with the binary.
//
//go:embed web/templates/*.html
var templateFS embed.FS
