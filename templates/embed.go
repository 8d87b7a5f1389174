// Package templates embeds the files hwgw setup writes into a new state directory.
package templates

import "embed"

//go:embed config.yaml world.hcl dashboard.md
var FS embed.FS
