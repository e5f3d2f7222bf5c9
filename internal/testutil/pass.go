package testutil

// RepeatingPassGenerator returns the same pass token every time.
//
// This enables deterministic gate runs and golden trace comparison: the
// same scenario with the same RepeatingPassGenerator produces
// byte-identical traces. Unlike gate.FixedGenerator, which returns
// tokens in sequence and panics on exhaustion, this generator never
// runs out - useful when a scenario does not fix its run count upfront.
//
// Thread-safety: RepeatingPassGenerator is stateless after construction
// and safe for concurrent use.
type RepeatingPassGenerator struct {
	token string
}

// NewRepeatingPassGenerator creates a new repeating pass token generator.
//
// The token is typically set in the scenario YAML:
//
//	pass_token: "test-pass-00000000-0000-0000-0000-000000000001"
//
// If token is empty, Generate() returns "test-pass-default".
func NewRepeatingPassGenerator(token string) *RepeatingPassGenerator {
	if token == "" {
		token = "test-pass-default"
	}
	return &RepeatingPassGenerator{token: token}
}

// Generate returns the fixed pass token.
//
// Implements gate.PassTokenGenerator.
func (g *RepeatingPassGenerator) Generate() string {
	return g.token
}
