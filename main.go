package main

import "github.com/saadjs/kcal-core/cmd/kcal"

func main() {
	kcal.Execute()
}
