// Package generation runs token generation on a background worker.
//
// A Session drives one engine.Handle. Start resets the context, decodes the
// prompt in batches and spawns a worker that samples tokens one at a time,
// publishing each fragment to an Output until end of generation, a stop word,
// the token limit, a decode failure or Stop. Consumers poll:
//
//	s.Start(prompt, 256)
//	for s.IsRunning() { render(s.Poll()) }
//	render(s.Poll())
//
// Generate, Stream and Follow wrap that loop for callers that prefer to block.
package generation
