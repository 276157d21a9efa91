package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to release a producer when a synthesized speech stream is no longer
// wanted (e.g., the conversation view closed mid-utterance).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
