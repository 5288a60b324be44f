package main

import "github.com/gkatanacio/resumable-downloader/cmd"

func main() {
	cmd.Execute()
}
