package forbiddencalls

import (
	"fmt"
	"os"
)

func PrintResult(code string) {
	fmt.Println("short code:", code) // want "fmt.Println is forbidden outside package main, use the logger"
	fmt.Printf("%s\n", code)         // want "fmt.Printf is forbidden outside package main, use the logger"
	fmt.Fprintln(os.Stderr, code)
	_ = fmt.Sprintf("%s", code)
}
