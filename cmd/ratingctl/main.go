// Command ratingctl ingests reports into vector indexes, runs field
// extractions and inspects the prompt templates from the terminal.
package main

func main() {
	Execute()
}
