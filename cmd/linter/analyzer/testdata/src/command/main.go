package main

import (
	"fmt"
	"os"
)

func helper() {
	fmt.Println("printing is fine in package main")
	os.Exit(2) // want "os.Exit is forbidden outside main function"
}

func main() {
	helper()
	fmt.Println("done")
	os.Exit(0)
}
