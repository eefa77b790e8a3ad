package main

import (
	"github.com/volutil/volutil/cmd/volutil/run"
	"github.com/volutil/volutil/utils/log"
)

var gitCommitID = "dev"

func main() {
	printWelcome()
	run.Execute()
}

func printWelcome() {
	if gitCommitID == "" {
		gitCommitID = "dev"
	}
	log.Info("-------- Welcome to use Volutil --------")
	log.Infof("Git Commit ID : %s", gitCommitID)
	log.Info("----------------------------------------")
}
