package forbiddencalls

import (
	"errors"
	"log"
	"os"
)

var errNoFreeCode = errors.New("no free code")

func MustGenerate(attempts int) string {
	if attempts == 0 {
		panic(errNoFreeCode) // want "panic is forbidden"
	}
	return "abc1234"
}

func OpenStore(dsn string) {
	if dsn == "" {
		log.Fatal("empty dsn") // want "log.Fatal is forbidden outside main function"
	}
}

func StopOnSignal() {
	os.Exit(1) // want "os.Exit is forbidden outside main function"
}

func ResolveOrDie(code string) string {
	if code == "" {
		panic("empty code")      // want "panic is forbidden"
		log.Fatal("unreachable") // want "log.Fatal is forbidden outside main function"
		os.Exit(2)               // want "os.Exit is forbidden outside main function"
	}
	log.Println("resolving", code)
	return code
}
