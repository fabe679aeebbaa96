package main

import "github.com/frahmantamala/song-requests/cmd"

func main() {
	cmd.Execute()
}
