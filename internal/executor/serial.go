package executor

// NameSerial is the registry name of the serial executor.
const NameSerial = "serial"

// Compile-time interface satisfaction check.
var _ Executor = (*Serial)(nil)

// Serial runs work inline in the submitting goroutine. Submission and
// completion are therefore sequential in program order; this is the
// engine's default mode.
type Serial struct{}

// NewSerial creates a serial executor.
func NewSerial() *Serial { return &Serial{} }

// Launch runs fn before returning.
func (s *Serial) Launch(fn func()) { fn() }

// Capabilities reports the serial executor's characteristics.
func (s *Serial) Capabilities() Capabilities {
	return Capabilities{Name: NameSerial, Concurrent: false, MaxConcurrency: 1}
}
