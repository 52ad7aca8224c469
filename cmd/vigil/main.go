package main

import (
	"github.com/vigil-lock/vigil/internal/cli"
	"github.com/vigil-lock/vigil/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
