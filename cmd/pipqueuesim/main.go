// Command pipqueuesim demonstrates a minimal outer scheduler driving the
// dispatch queues defined in github.com/go-foundations/dispatchqueue.
package main

func main() {
	Execute()
}
