package main

import "aurgate/internal/aurgate"

func main() {
	aurgate.Main()
}
