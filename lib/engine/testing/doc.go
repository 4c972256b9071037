// Package testing provides a conformance test suite for engine backends
// registered with the engine package.
//
// Example usage:
//
//	func TestMyBackend(t *testing.T) {
//		enginetesting.RunEngineTests(t, "MyBackend", mybackend.Open)
//	}
//
// Every test opens its own environment below t.TempDir, so the suite can run
// against any backend without cleanup between runs.
package testing
