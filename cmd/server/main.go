package main

import "github.com/eleven-am/meeting-scribe/internal/bootstrap"

func main() {
	bootstrap.Run()
}
