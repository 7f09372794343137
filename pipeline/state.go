package pipeline

// State tracks how far a wavelength bin has progressed through a run.
type State uint8

const (
	// Untrained is the initial state: no basis exists for the bin.
	Untrained State = iota
	// BasisTrained means the PCA basis is fitted and persisted.
	BasisTrained
	// EmulatorTrained means the emulator is fitted and persisted; the bin
	// has not (or not successfully) been validated yet.
	EmulatorTrained
	// Validated means the emulator met its accuracy threshold on the test
	// corpus. Terminal state.
	Validated
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Untrained:
		return "UNTRAINED"
	case BasisTrained:
		return "BASIS_TRAINED"
	case EmulatorTrained:
		return "EMULATOR_TRAINED"
	case Validated:
		return "VALIDATED"
	default:
		return "UNKNOWN"
	}
}
