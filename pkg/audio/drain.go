package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use it when a synthesis stream is abandoned mid-way so the producer
// goroutine can finish instead of blocking on a full channel.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
