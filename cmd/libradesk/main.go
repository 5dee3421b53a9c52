// cmd/libradesk/main.go
package main

import "os"

func main() {
	os.Exit(execute())
}
