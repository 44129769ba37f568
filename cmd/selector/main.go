// Package main is the entry point for the selector service.
//
//	@title			Selector - HTTP Upstream Selection Engine
//	@version		1.0
//	@description	Host/path/rule-based upstream selection with pluggable remote-control backends.
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//	@host			localhost:9090
//	@BasePath		/
package main

func main() {
	Execute()
}
