// Package shared holds cross-cutting helpers that belong to no single
// layer. Today that is the testutil subpackage, a capturing slog handler
// so tests can assert on what a component logged:
//
//	func TestSomething(t *testing.T) {
//	    logger, buf := testutil.NewTestLogger(t)
//
//	    // exercise the component with logger, then:
//	    records := buf.GetRecords()
//	}
//
// Nothing here may depend on the domain packages; shared code that needs
// one belongs next to it instead.
package shared
