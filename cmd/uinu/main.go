// Uinu - game server instance lifecycle controller
// Watch. Sleep. Reap.
package main

func main() {
	Execute()
}
