package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/wagate/gateway/cmd/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		logrus.WithError(err).Errorln("Command failed")
		os.Exit(1)
	}
}
