//go:build llama

package engine

// cgo build directives for the in-process llama.cpp backend.
// - The rpath of $ORIGIN lets the runtime loader find libllama.so and
//   libggml*.so next to the built binary (./bin).
// - -L${SRCDIR}/../../bin finds libllama.so at link time; headers are
//   expected under ./include (llama.h, ggml*.h).
/*
#cgo CFLAGS: -I${SRCDIR}/../../include
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama -lggml -lggml-base
*/
import "C"
