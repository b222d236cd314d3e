package main

import (
	"github.com/eclecticiq/OpenTAXII-sub000/internal/cli"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/logtrace"
)

func init() {
	logtrace.InitLogger("info")
}

func main() {
	cli.Execute()
}
