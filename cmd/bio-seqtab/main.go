package main

import "github.com/grailbio/seqtab/cmd/bio-seqtab/cmd"

func main() {
	cmd.Run()
}
