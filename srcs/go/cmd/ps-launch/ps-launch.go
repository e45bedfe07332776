package main

import (
	"os"

	"github.com/lsds/paramserver/srcs/go/cmd/ps-launch/app"
)

func main() { app.Main(os.Args) }
